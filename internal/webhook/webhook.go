// Package webhook receives Twikey event notifications and turns them into feed syncs.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/berniyo/twikey-lambda/internal/common/errors"
	commonHttp "github.com/berniyo/twikey-lambda/internal/common/http"
	"github.com/berniyo/twikey-lambda/internal/handler"
)

const maxPayloadBytes = 1 << 20

// Syncer runs a feed sync, typically a *handler.Processor.
type Syncer interface {
	Handle(ctx context.Context, req handler.SyncRequest) (handler.SyncResponse, error)
}

// eventFeeds maps webhook event types to the feed carrying their changes.
var eventFeeds = map[string]string{
	"contract":    handler.FeedMandates,
	"payment":     handler.FeedTransactions,
	"invoice":     handler.FeedInvoices,
	"paymentlink": handler.FeedPaylinks,
	"transfer":    handler.FeedRefunds,
}

// FeedsFor returns the feeds to sync for an event type. Unknown types return nil, which lets the
// processor sync its default feeds.
func FeedsFor(eventType string) []string {
	if feed, ok := eventFeeds[strings.ToLower(strings.TrimSpace(eventType))]; ok {
		return []string{feed}
	}
	return nil
}

// Service verifies webhook calls and triggers the matching feed syncs.
type Service struct {
	apiKey string
	syncer Syncer
	logger *slog.Logger
	router chi.Router

	// syncMu serializes syncs since the server keeps a single position per feed.
	syncMu sync.Mutex
}

// New builds the webhook service. apiKey is the key the payload signatures are made with.
func New(apiKey string, syncer Syncer, logger *slog.Logger) (*Service, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "webhook API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		apiKey: apiKey,
		syncer: syncer,
		logger: logger,
	}

	r := commonHttp.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/webhook", s.handleEvent)
	r.Post("/webhook", s.handleEvent)
	s.router = r

	return s, nil
}

// Chi returns the router for this service.
func (s *Service) Chi() chi.Router {
	return s.router
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	commonHttp.Success(w, map[string]string{"status": "ok"})
}

// handleEvent accepts the event either as a form body or as the query string; the signature
// covers whichever of the two carries it.
func (s *Service) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		s.logger.Error("failed to read webhook body", "error", err)
		commonHttp.Error(w, errors.Wrap(err, "read request body"), http.StatusInternalServerError)
		return
	}

	payload := body
	if len(payload) == 0 {
		payload = []byte(r.URL.RawQuery)
	}

	signature := r.Header.Get(SignatureHeader)
	if !Verify(s.apiKey, payload, signature) {
		s.logger.Warn("invalid webhook signature", "signature", signature)
		commonHttp.HandleError(w, errors.ErrUnauthorized)
		return
	}

	params, err := url.ParseQuery(string(payload))
	if err != nil {
		commonHttp.HandleError(w, errors.Wrap(errors.ErrInvalidInput, "parse webhook payload: %v", err))
		return
	}

	eventType := params.Get("type")
	feeds := FeedsFor(eventType)
	s.logger.Info("webhook received", "type", eventType, "feeds", feeds)

	s.syncMu.Lock()
	resp, err := s.syncer.Handle(r.Context(), handler.SyncRequest{Feeds: feeds})
	s.syncMu.Unlock()

	if err != nil {
		s.logger.Error("webhook sync failed", "type", eventType, "error", err)
		commonHttp.JSON(w, http.StatusBadGateway, commonHttp.Response{Success: false, Data: resp, Error: err.Error()})
		return
	}

	commonHttp.Success(w, resp)
}
