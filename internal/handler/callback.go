package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/berniyo/twikey-lambda/internal/common/errors"
)

const (
	defaultCallbackTimeout = 15 * time.Second
	maxErrorBodyBytes      = 4096
)

// HTTPSCallbackSender posts feed events to an HTTPS endpoint.
type HTTPSCallbackSender struct {
	url        string
	secret     string
	httpClient *http.Client
}

// NewHTTPSCallbackSender builds an HTTPS callback client.
func NewHTTPSCallbackSender(url, secret string, client *http.Client) (*HTTPSCallbackSender, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("callback URL is required")
	}

	if client == nil {
		client = &http.Client{Timeout: defaultCallbackTimeout}
	}

	return &HTTPSCallbackSender{
		url:        url,
		secret:     secret,
		httpClient: client,
	}, nil
}

// IdempotencyKey identifies one delivery: the batch cursor plus the event position in the batch.
// Two events for the same record in one batch get different keys.
func IdempotencyKey(event FeedEvent) string {
	return event.Feed + ":" + event.Cursor + ":" + strconv.Itoa(event.Seq)
}

// Send posts the event as JSON. Anything but a 2xx answer is a failed delivery.
func (h *HTTPSCallbackSender) Send(ctx context.Context, event FeedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode %s event %s", event.Feed, event.Reference)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "prepare %s event %s", event.Feed, event.Reference)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Feed-Run", event.RunID)
	req.Header.Set("Idempotency-Key", IdempotencyKey(event))
	if h.secret != "" {
		req.Header.Set("X-Callback-Secret", h.secret)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "deliver %s event %s", event.Feed, event.Reference)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%s event %s rejected with status %d: %s",
			event.Feed, event.Reference, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
