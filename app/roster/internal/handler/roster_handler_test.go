package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/capture"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/lk2023060901/xdooria-roster/pkg/web/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	ingestErr error
	rosterErr error
	payloads  []capture.Payload
}

func (s *fakeService) Ingest(_ context.Context, accountID string, p capture.Payload) (*service.Outcome, error) {
	if s.ingestErr != nil {
		return nil, s.ingestErr
	}
	s.payloads = append(s.payloads, p)
	return &service.Outcome{
		Saved: true,
		Report: &reconcile.ChangeReport{
			AccountID:  accountID,
			Generation: 3,
			Changes: []reconcile.Change{{
				CharacterID: 1205,
				Kind:        reconcile.KindUpdated,
				Deltas:      []reconcile.Delta{{Field: reconcile.FieldWeaponLevel, Old: 70, New: 80}},
			}},
			Summary: reconcile.Summary{Updated: 1},
		},
	}, nil
}

func (s *fakeService) IngestBatch(ctx context.Context, items []service.BatchItem) []service.BatchResult {
	out := make([]service.BatchResult, len(items))
	for i, it := range items {
		o, err := s.Ingest(ctx, it.AccountID, it.Payload)
		out[i] = service.BatchResult{AccountID: it.AccountID, Outcome: o, Err: err}
	}
	return out
}

func (s *fakeService) Roster(_ context.Context, accountID string) (*model.Roster, error) {
	if s.rosterErr != nil {
		return nil, s.rosterErr
	}
	return &model.Roster{AccountID: accountID, Generation: 3, Entries: []model.RosterEntry{{CharacterID: 1102}}}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r http.Handler, method, path, body string, header ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func newRouter(svc RosterService, mws ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mws...)
	NewRosterHandler(svc, nil, nil).Register(r)
	NewHealthHandler(nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})).Register(r)
	return r
}

func TestIngestHidesDeltasByDefault(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	rec, env := do(t, r, http.MethodPost, "/api/v1/accounts/100/captures", `{"RoleListNotify":{"roleList":[]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp IngestResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.Saved)
	assert.Equal(t, 1, resp.Report.Summary.Updated)
	require.Len(t, resp.Report.Changes, 1)
	assert.Empty(t, resp.Report.Changes[0].Deltas)
	require.Len(t, svc.payloads, 1)
	assert.True(t, svc.payloads[0].Has(capture.NotifyRoleList))

	rec, env = do(t, r, http.MethodPost, "/api/v1/accounts/100/captures?deltas=true", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Len(t, resp.Report.Changes[0].Deltas, 1)
}

func TestIngestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errors.Mark(errors.New("pg down"), reconcile.ErrStorage), http.StatusServiceUnavailable},
		{errors.Wrap(service.ErrAccountMismatch, "capture account 9"), http.StatusForbidden},
		{service.ErrInvalidAccount, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newRouter(&fakeService{ingestErr: tc.err})
		rec, _ := do(t, r, http.MethodPost, "/api/v1/accounts/100/captures", `{}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}

	rec, _ := do(t, newRouter(&fakeService{}), http.MethodPost, "/api/v1/accounts/100/captures", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRosterQuery(t *testing.T) {
	rec, env := do(t, newRouter(&fakeService{}), http.MethodGet, "/api/v1/accounts/100/roster", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var roster model.Roster
	require.NoError(t, json.Unmarshal(env.Data, &roster))
	assert.Equal(t, "100", roster.AccountID)
	assert.Equal(t, int64(3), roster.Generation)

	rec, _ = do(t, newRouter(&fakeService{rosterErr: model.ErrRosterNotFound}), http.MethodGet, "/api/v1/accounts/100/roster", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestBatch(t *testing.T) {
	r := newRouter(&fakeService{})
	rec, env := do(t, r, http.MethodPost, "/api/v1/captures/batch",
		`{"items":[{"account_id":"1","payload":{}},{"account_id":"2","payload":{}}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Results []service.BatchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Results, 2)
	assert.Equal(t, "2", data.Results[1].AccountID)
	assert.Empty(t, data.Results[0].Outcome.Report.Changes[0].Deltas)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/captures/batch", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthScopesAccountRoutes(t *testing.T) {
	opts := &middleware.AuthOptions{SecretKey: "s3cret", TokenPrefix: "Bearer ", SkipPaths: []string{"/health"}}
	r := newRouter(&fakeService{}, middleware.Auth(opts))

	own, err := middleware.IssueToken(opts, "100", time.Minute)
	require.NoError(t, err)
	admin, err := middleware.IssueToken(opts, "ops", time.Minute, middleware.ScopeAdmin)
	require.NoError(t, err)

	rec, _ := do(t, r, http.MethodGet, "/api/v1/accounts/100/roster", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/api/v1/accounts/100/roster", "", "Authorization", "Bearer "+own)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/api/v1/accounts/200/roster", "", "Authorization", "Bearer "+own)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/api/v1/accounts/200/roster", "", "Authorization", "Bearer "+admin)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/captures/batch", `{"items":[{"account_id":"100","payload":{}}]}`,
		"Authorization", "Bearer "+own)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	r := newRouter(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}
