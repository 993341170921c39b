package draft

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pricebridge/internal/db"
	"github.com/bartek5186/pricebridge/internal/reconcile"
)

func sample() *Snapshot {
	return &Snapshot{
		Dataset:  "mapping",
		FileName: "prices.csv",
		Headers:  []string{"Marque", "Cat Fab"},
		Mapping:  map[string]string{"marque": "Marque", "cat_fab": "Cat Fab"},
		Step:     "resolve",
		Resolutions: reconcile.Resolutions{
			"skf|BRG": {Action: reconcile.ActionMerge, FieldChoices: map[string]reconcile.Choice{"segment": reconcile.ChoiceImport}},
		},
	}
}

// roundTrip sprawdza wspólny kontrakt wszystkich backendów.
func roundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx, "u1", "mapping")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Save(ctx, "u1", sample()))
	got, err = s.Load(ctx, "u1", "mapping")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Version, got.Version)
	assert.Equal(t, "prices.csv", got.FileName)
	assert.Equal(t, "resolve", got.Step)
	assert.Equal(t, reconcile.ChoiceImport, got.Resolutions["skf|BRG"].FieldChoices["segment"])
	assert.False(t, got.SavedAt.IsZero())

	other, err := s.Load(ctx, "u2", "mapping")
	require.NoError(t, err)
	assert.Nil(t, other, "drafts are per user")

	require.NoError(t, s.Clear(ctx, "u1", "mapping"))
	got, err = s.Load(ctx, "u1", "mapping")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, s.Save(ctx, "u1", &Snapshot{}))
}

func TestMemoryStore(t *testing.T) {
	roundTrip(t, NewMemoryStore())
}

func TestMemoryStore_StaleVersionIsNoDraft(t *testing.T) {
	m := NewMemoryStore()
	m.data[key("u1", "mapping")] = []byte(`{"version":0,"dataset":"mapping","step":"map"}`)
	got, err := m.Load(context.Background(), "u1", "mapping")
	require.NoError(t, err)
	assert.Nil(t, got)

	m.data[key("u1", "mapping")] = []byte(`{not json`)
	got, err = m.Load(context.Background(), "u1", "mapping")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func newDBStore(t *testing.T, ttl time.Duration) *DBStore {
	t.Helper()
	h, err := db.Open("sqlite", "file::memory:", db.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	require.NoError(t, h.Migrate())
	return NewDBStore(h.DB, ttl)
}

func TestDBStore(t *testing.T) {
	roundTrip(t, newDBStore(t, time.Hour))
}

func TestDBStore_SaveOverwrites(t *testing.T) {
	d := newDBStore(t, 0)
	ctx := context.Background()
	s := sample()
	require.NoError(t, d.Save(ctx, "u1", s))
	s.Step = "done"
	require.NoError(t, d.Save(ctx, "u1", s))

	got, err := d.Load(ctx, "u1", "mapping")
	require.NoError(t, err)
	assert.Equal(t, "done", got.Step)

	var n int64
	require.NoError(t, d.db.Model(&db.KV{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestDBStore_Expiry(t *testing.T) {
	d := newDBStore(t, time.Hour)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }
	require.NoError(t, d.Save(ctx, "u1", sample()))

	d.now = func() time.Time { return base.Add(2 * time.Hour) }
	got, err := d.Load(ctx, "u1", "mapping")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := d.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// Wymaga działającego Redisa (REDIS_ADDR), w przeciwnym razie test jest pomijany.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	s := NewRedisStore(client, time.Minute)
	roundTrip(t, s)

	require.NoError(t, s.Save(context.Background(), "u1", sample()))
	ttl, err := client.TTL(context.Background(), key("u1", "mapping")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	require.NoError(t, s.Clear(context.Background(), "u1", "mapping"))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "pricebridge:draft:u1:segment", key("u1", "segment"))
}
