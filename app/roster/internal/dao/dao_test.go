package dao

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/pkg/database/redis"
	"github.com/lk2023060901/xdooria-roster/pkg/database/sqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteDAO(t *testing.T) *SQLRosterDAO {
	t.Helper()
	db, err := sqldb.Open(&sqldb.Config{Driver: sqldb.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d := NewSQLRosterDAO(db, nil, nil)
	require.NoError(t, d.Migrate(context.Background()))
	return d
}

func sampleRoster(generation int64) *model.Roster {
	return &model.Roster{
		AccountID:  "100200300",
		Generation: generation,
		UpdatedAt:  time.UnixMilli(1_760_000_000_000).UTC(),
		Entries: []model.RosterEntry{
			{
				CharacterID:  1102,
				Name:         "Sanhua",
				Level:        50,
				ChainUnlocks: model.NewChain(0),
				Skills:       [model.SkillSlots]int{5, 0, 0, 0, 0},
			},
			{
				CharacterID:  1205,
				Name:         "Changli",
				Level:        80,
				ChainUnlocks: model.NewChain(1),
				Skills:       [model.SkillSlots]int{8, 9, 7, 6, 8},
				Weapon:       model.WeaponSlot{ID: 21020015, Name: "Blazing Brilliance", Level: 80, Refinement: 1},
				Relics: []model.RelicSlot{{
					IncID: 101, RelicID: 6000045, Cost: 4, Star: 5, SetID: 2, SetName: "Molten Rift",
					Main: model.Property{ID: 10003, Key: 3, Name: "Crit DMG", Percentage: true, Raw: 4410, Value: 44.1},
					Subs: []model.Property{{ID: 1007, Key: 7, Name: "ATK%", Percentage: true, Raw: 2250, Value: 22.5}},
				}},
			},
		},
	}
}

func assertSameRoster(t *testing.T, want, got *model.Roster) {
	t.Helper()
	assert.Equal(t, want.AccountID, got.AccountID)
	assert.Equal(t, want.Generation, got.Generation)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
	require.Len(t, got.Entries, len(want.Entries))
	for i := range want.Entries {
		assert.True(t, want.Entries[i].Equal(got.Entries[i]), "entry %d", want.Entries[i].CharacterID)
	}
	assert.Equal(t, want.Digest(), got.Digest())
}

func TestSQLRosterDAOLoadMissing(t *testing.T) {
	d := newSQLiteDAO(t)
	_, err := d.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, model.ErrRosterNotFound)
}

func TestSQLRosterDAOSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	d := newSQLiteDAO(t)

	first := sampleRoster(1)
	require.NoError(t, d.Save(ctx, first))
	got, err := d.Load(ctx, first.AccountID)
	require.NoError(t, err)
	assertSameRoster(t, first, got)

	second := sampleRoster(2)
	second.Entries = second.Entries[1:]
	second.Entries[0].Level = 90
	require.NoError(t, d.Save(ctx, second))
	got, err = d.Load(ctx, second.AccountID)
	require.NoError(t, err)
	assertSameRoster(t, second, got)

	ids, err := d.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100200300"}, ids)
}

func TestSQLRosterDAORejectsStaleGeneration(t *testing.T) {
	ctx := context.Background()
	d := newSQLiteDAO(t)

	require.NoError(t, d.Save(ctx, sampleRoster(3)))
	err := d.Save(ctx, sampleRoster(3))
	assert.True(t, errors.Is(err, ErrStaleGeneration))
	err = d.Save(ctx, sampleRoster(2))
	assert.True(t, errors.Is(err, ErrStaleGeneration))

	got, err := d.Load(ctx, "100200300")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Generation)
}

func TestSQLRosterDAOMigrateIsIdempotent(t *testing.T) {
	d := newSQLiteDAO(t)
	assert.NoError(t, d.Migrate(context.Background()))
}

type memoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]time.Duration
	err  error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, redis.ErrNil
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttl[key] = ttl
	return nil
}

func (m *memoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestCacheDAORoundTrip(t *testing.T) {
	for _, algo := range []string{"", "none", "zstd", "lz4"} {
		t.Run("compression="+algo, func(t *testing.T) {
			ctx := context.Background()
			kv := newMemoryKV()
			d, err := NewCacheDAO(kv, &CacheConfig{Compression: algo}, nil, nil)
			require.NoError(t, err)

			got, err := d.GetRoster(ctx, "100200300")
			require.NoError(t, err)
			assert.Nil(t, got)

			want := sampleRoster(4)
			require.NoError(t, d.SetRoster(ctx, want))
			assert.Equal(t, defaultRosterCacheTTL, kv.ttl["cache:roster:100200300"])

			got, err = d.GetRoster(ctx, want.AccountID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assertSameRoster(t, want, got)

			require.NoError(t, d.DeleteRoster(ctx, want.AccountID))
			got, err = d.GetRoster(ctx, want.AccountID)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestCacheDAOErrors(t *testing.T) {
	_, err := NewCacheDAO(newMemoryKV(), &CacheConfig{Compression: "brotli"}, nil, nil)
	assert.Error(t, err)

	kv := newMemoryKV()
	d, err := NewCacheDAO(kv, &CacheConfig{TTL: time.Minute}, nil, nil)
	require.NoError(t, err)

	kv.data[rosterKey("x")] = []byte{0xff, 0x01}
	_, err = d.GetRoster(context.Background(), "x")
	assert.Error(t, err)

	kv.err = errors.New("connection refused")
	_, err = d.GetRoster(context.Background(), "x")
	assert.Error(t, err)
	assert.Error(t, d.SetRoster(context.Background(), sampleRoster(1)))
}
