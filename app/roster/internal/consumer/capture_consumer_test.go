package consumer

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/capture"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/lk2023060901/xdooria-roster/pkg/mq/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	accounts []string
	payloads []capture.Payload
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, accountID string, p capture.Payload) (*service.Outcome, error) {
	f.accounts = append(f.accounts, accountID)
	f.payloads = append(f.payloads, p)
	if f.err != nil {
		return nil, f.err
	}
	return &service.Outcome{Report: &reconcile.ChangeReport{AccountID: accountID}}, nil
}

func TestHandleResolvesAccount(t *testing.T) {
	ing := &fakeIngester{}
	c := NewCaptureConsumer(nil, ing, nil)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, &kafka.Message{Key: []byte("100"), Value: []byte(`{"RoleListNotify":{}}`)}))
	require.NoError(t, c.Handle(ctx, &kafka.Message{
		Key:     []byte("ignored"),
		Headers: map[string]string{HeaderAccountID: "200"},
		Value:   []byte(`{}`),
	}))
	assert.Equal(t, []string{"100", "200"}, ing.accounts)
	assert.True(t, ing.payloads[0].Has(capture.NotifyRoleList))
}

func TestHandleDropsBadMessages(t *testing.T) {
	ing := &fakeIngester{}
	c := NewCaptureConsumer(nil, ing, nil)
	ctx := context.Background()

	assert.NoError(t, c.Handle(ctx, &kafka.Message{Value: []byte(`{}`)}))
	assert.NoError(t, c.Handle(ctx, &kafka.Message{Key: []byte("100"), Value: []byte(`{broken`)}))
	assert.Empty(t, ing.accounts)

	ing.err = service.ErrAccountMismatch
	assert.NoError(t, c.Handle(ctx, &kafka.Message{Key: []byte("100"), Value: []byte(`{}`)}))
}

func TestHandleRetriesStorageErrors(t *testing.T) {
	ing := &fakeIngester{err: errors.Mark(errors.New("pg down"), reconcile.ErrStorage)}
	c := NewCaptureConsumer(nil, ing, nil)
	err := c.Handle(context.Background(), &kafka.Message{Key: []byte("100"), Value: []byte(`{}`)})
	assert.True(t, errors.Is(err, reconcile.ErrStorage))
}

func TestDisabledConsumerIsNoop(t *testing.T) {
	c := NewCaptureConsumer(&kafka.Config{}, &fakeIngester{}, nil)
	assert.NoError(t, c.Start())
	assert.NoError(t, c.Stop())
}
