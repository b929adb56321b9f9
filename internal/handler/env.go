package handler

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/berniyo/twikey-lambda/internal/common/errors"
	"github.com/berniyo/twikey-lambda/internal/cursor"
)

// NewProcessorFromEnv wires a Processor from FEED_CALLBACK_URL, FEED_CALLBACK_SECRET,
// DATABASE_URL and FEEDS. Without a database the cursors live in memory. The returned close
// function releases the cursor store.
func NewProcessorFromEnv(ctx context.Context, client FeedClient, logger *slog.Logger) (*Processor, func() error, error) {
	opts := []Option{WithLogger(logger)}
	closeFn := func() error { return nil }

	if callbackURL := strings.TrimSpace(os.Getenv("FEED_CALLBACK_URL")); callbackURL != "" {
		sender, err := NewHTTPSCallbackSender(callbackURL, os.Getenv("FEED_CALLBACK_SECRET"), nil)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, WithCallbackSender(sender))
	} else if logger != nil {
		logger.Warn("FEED_CALLBACK_URL not set, feed events will only advance the cursors")
	}

	feeds, err := ParseFeeds(os.Getenv("FEEDS"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "FEEDS")
	}
	opts = append(opts, WithDefaultFeeds(feeds...))

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		store, err := cursor.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open cursor store")
		}
		opts = append(opts, WithCursorStore(store))
		closeFn = store.Close
	}

	return NewProcessor(client, opts...), closeFn, nil
}
