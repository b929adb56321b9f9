package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/berniyo/twikey-lambda/internal/cursor"
)

func TestNewProcessorFromEnv(t *testing.T) {
	t.Setenv("FEED_CALLBACK_URL", "https://example.com/hook")
	t.Setenv("FEED_CALLBACK_SECRET", "s3cret")
	t.Setenv("FEEDS", "invoice,refund")
	t.Setenv("DATABASE_URL", "")

	p, closeFn, err := NewProcessorFromEnv(context.Background(), &fakeClient{}, quietLogger())
	require.NoError(t, err)
	require.NoError(t, closeFn())

	require.Equal(t, []string{FeedInvoices, FeedRefunds}, p.defaultFeeds)
	require.IsType(t, &cursor.Memory{}, p.store)

	sender, ok := p.callback.(*HTTPSCallbackSender)
	require.True(t, ok)
	require.Equal(t, "https://example.com/hook", sender.url)
	require.Equal(t, "s3cret", sender.secret)
}

func TestNewProcessorFromEnvDefaults(t *testing.T) {
	t.Setenv("FEED_CALLBACK_URL", "")
	t.Setenv("FEEDS", "")
	t.Setenv("DATABASE_URL", "")

	p, _, err := NewProcessorFromEnv(context.Background(), &fakeClient{}, quietLogger())
	require.NoError(t, err)
	require.Nil(t, p.callback)
	require.Equal(t, AllFeeds, p.defaultFeeds)
}

func TestNewProcessorFromEnvRejectsUnknownFeed(t *testing.T) {
	t.Setenv("FEED_CALLBACK_URL", "")
	t.Setenv("FEEDS", "mandate,ledger")

	_, _, err := NewProcessorFromEnv(context.Background(), &fakeClient{}, quietLogger())
	require.ErrorContains(t, err, `FEEDS: unknown feed "ledger"`)
}
