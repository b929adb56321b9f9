package cursor

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryLoadSave(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	pos, err := store.Load(ctx, "invoice")
	require.NoError(t, err)
	require.Empty(t, pos)

	require.NoError(t, store.Save(ctx, "invoice", "1234"))
	require.NoError(t, store.Save(ctx, "mandate", "77"))
	require.NoError(t, store.Save(ctx, "invoice", "1240"))

	pos, err = store.Load(ctx, "invoice")
	require.NoError(t, err)
	require.Equal(t, "1240", pos)

	pos, err = store.Load(ctx, "mandate")
	require.NoError(t, err)
	require.Equal(t, "77", pos)
}

func TestNewPostgresRejectsEmptyTable(t *testing.T) {
	_, err := NewPostgres(context.Background(), nil, WithTable(""))
	require.Error(t, err)
}

func TestPostgresLoadSave(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := OpenPostgres(ctx, dsn, WithTable("twikey_feed_cursor_test"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+store.table)
		store.Close()
	})

	pos, err := store.Load(ctx, "refund")
	require.NoError(t, err)
	require.Empty(t, pos)

	require.NoError(t, store.Save(ctx, "refund", "10"))
	require.NoError(t, store.Save(ctx, "refund", "11"))

	pos, err = store.Load(ctx, "refund")
	require.NoError(t, err)
	require.Equal(t, "11", pos)
}
