package handler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/berniyo/twikey-lambda/internal/common/errors"
	"github.com/berniyo/twikey-lambda/internal/cursor"
	"github.com/berniyo/twikey-lambda/internal/twikey"
)

// Feed names, also used as cursor store keys.
const (
	FeedMandates     = "mandate"
	FeedInvoices     = "invoice"
	FeedTransactions = "transaction"
	FeedPaylinks     = "paylink"
	FeedRefunds      = "refund"
)

// AllFeeds lists every feed in the order a full sync visits them.
var AllFeeds = []string{FeedMandates, FeedInvoices, FeedTransactions, FeedPaylinks, FeedRefunds}

// FeedClient defines the subset of the Twikey client used by the processor.
type FeedClient interface {
	FeedDocuments(ctx context.Context, h twikey.DocumentFeedHandler, opts ...twikey.FeedOption) (twikey.FeedResult, error)
	FeedInvoices(ctx context.Context, h twikey.InvoiceFeedHandler, opts ...twikey.FeedOption) (twikey.FeedResult, error)
	FeedTransactions(ctx context.Context, h twikey.TransactionFeedHandler, opts ...twikey.FeedOption) (twikey.FeedResult, error)
	FeedPaylinks(ctx context.Context, h twikey.PaylinkFeedHandler, opts ...twikey.FeedOption) (twikey.FeedResult, error)
	FeedRefunds(ctx context.Context, h twikey.RefundFeedHandler, opts ...twikey.FeedOption) (twikey.FeedResult, error)
}

// SyncRequest is the payload sent to the Lambda function. An empty list syncs the default feeds.
type SyncRequest struct {
	Feeds []string `json:"feeds,omitempty"`
}

// FeedEvent is one feed message forwarded downstream.
type FeedEvent struct {
	RunID     string     `json:"runId"`
	Feed      string     `json:"feed"`
	Kind      string     `json:"kind"`
	Reference string     `json:"ref"`
	Cursor    string     `json:"cursor"`
	// Seq is the 1-based position of the event within its batch.
	Seq       int        `json:"seq"`
	At        *time.Time `json:"at,omitempty"`
	Payload   any        `json:"payload"`
}

// Event kinds.
const (
	KindCreated   = "created"
	KindAmended   = "amended"
	KindCancelled = "cancelled"
	KindUpdated   = "updated"
)

// MandateChange is the payload of amended and cancelled mandate events.
type MandateChange struct {
	Document *twikey.Document `json:"document,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	Author   string           `json:"author,omitempty"`
}

// FeedSummary reports how far one feed got.
type FeedSummary struct {
	Feed        string `json:"feed"`
	ResumedFrom string `json:"resumedFrom,omitempty"`
	Cursor      string `json:"cursor,omitempty"`
	Batches     int    `json:"batches"`
	Events      int    `json:"events"`
	Stopped     bool   `json:"stopped,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SyncResponse is emitted after processing completes.
type SyncResponse struct {
	RunID string        `json:"runId"`
	Feeds []FeedSummary `json:"feeds"`
}

// CallbackSender delivers feed events to downstream systems.
type CallbackSender interface {
	Send(ctx context.Context, event FeedEvent) error
}

// Processor pulls Twikey feeds, forwards their events and stores the resume cursors.
//
// Delivery is at least once: the stored cursor only moves past a batch once every event of that
// batch was delivered, so a failed or interrupted run repeats the unfinished batch next time.
// Runs on one Processor must not overlap since the server tracks a single feed position.
type Processor struct {
	client       FeedClient
	store        cursor.Store
	callback     CallbackSender
	logger       *slog.Logger
	defaultFeeds []string
}

// Option customizes the processor.
type Option func(*Processor)

// WithCursorStore persists cursors somewhere other than process memory.
func WithCursorStore(store cursor.Store) Option {
	return func(p *Processor) {
		if store != nil {
			p.store = store
		}
	}
}

// WithLogger lets callers supply a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCallbackSender wires the destination every feed event is delivered to.
func WithCallbackSender(sender CallbackSender) Option {
	return func(p *Processor) {
		p.callback = sender
	}
}

// WithDefaultFeeds sets the feeds synced when a request names none.
func WithDefaultFeeds(feeds ...string) Option {
	return func(p *Processor) {
		if len(feeds) > 0 {
			p.defaultFeeds = feeds
		}
	}
}

// NewProcessor builds a Processor with sane defaults.
func NewProcessor(client FeedClient, opts ...Option) *Processor {
	p := &Processor{
		client:       client,
		store:        cursor.NewMemory(),
		logger:       slog.Default(),
		defaultFeeds: AllFeeds,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ParseFeeds splits a comma separated feed list, rejecting unknown names.
func ParseFeeds(s string) ([]string, error) {
	var feeds []string
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if !slices.Contains(AllFeeds, name) {
			return nil, errors.Wrap(errors.ErrInvalidInput, "unknown feed %q", name)
		}
		feeds = append(feeds, name)
	}
	return feeds, nil
}

// Handle implements the AWS Lambda handler entry point. Every requested feed is attempted; the
// returned error joins the failures of all feeds.
func (p *Processor) Handle(ctx context.Context, req SyncRequest) (SyncResponse, error) {
	feeds := req.Feeds
	if len(feeds) == 0 {
		feeds = p.defaultFeeds
	}
	for _, feed := range feeds {
		if !slices.Contains(AllFeeds, feed) {
			return SyncResponse{}, errors.Wrap(errors.ErrInvalidInput, "unknown feed %q", feed)
		}
	}

	resp := SyncResponse{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", resp.RunID)
	logger.Info("starting feed sync", "feeds", feeds)

	var errs []error
	for _, feed := range feeds {
		summary, err := p.syncFeed(ctx, resp.RunID, feed, logger)
		if err != nil {
			summary.Error = err.Error()
			errs = append(errs, err)
			logger.Error("feed sync failed", "feed", feed, "error", err)
		}
		resp.Feeds = append(resp.Feeds, summary)
	}

	return resp, errors.Join(errs...)
}

func (p *Processor) syncFeed(ctx context.Context, runID, feed string, logger *slog.Logger) (FeedSummary, error) {
	summary := FeedSummary{Feed: feed}

	from, err := p.store.Load(ctx, feed)
	if err != nil {
		return summary, errors.Wrap(err, "load %s cursor", feed)
	}
	summary.ResumedFrom = from

	var opts []twikey.FeedOption
	if from != "" {
		opts = append(opts, twikey.ResumeAfter(from))
	}

	sink := &eventSink{
		ctx:      ctx,
		runID:    runID,
		feed:     feed,
		callback: p.callback,
		logger:   logger.With("feed", feed),
	}
	result, feedErr := p.pull(ctx, feed, sink, opts)

	summary.Cursor = result.Cursor
	summary.Batches = result.Batches
	summary.Events = result.Events
	summary.Stopped = result.Stopped

	if result.Cursor != "" {
		if err := p.store.Save(ctx, feed, result.Cursor); err != nil {
			return summary, errors.Join(feedErr, sink.err, errors.Wrap(err, "save %s cursor", feed))
		}
	}

	logger.Info("feed synced", "feed", feed, "from", from, "cursor", result.Cursor, "batches", result.Batches, "events", result.Events)
	return summary, errors.Join(feedErr, sink.err)
}

func (p *Processor) pull(ctx context.Context, feed string, sink *eventSink, opts []twikey.FeedOption) (twikey.FeedResult, error) {
	switch feed {
	case FeedMandates:
		return p.client.FeedDocuments(ctx, sink, opts...)
	case FeedInvoices:
		return p.client.FeedInvoices(ctx, sink, opts...)
	case FeedTransactions:
		return p.client.FeedTransactions(ctx, sink, opts...)
	case FeedPaylinks:
		return p.client.FeedPaylinks(ctx, sink, opts...)
	case FeedRefunds:
		return p.client.FeedRefunds(ctx, sink, opts...)
	}
	return twikey.FeedResult{}, fmt.Errorf("unknown feed %q", feed)
}

// eventSink implements every feed handler interface and forwards events to the callback.
// A delivery failure stops the feed and is kept in err.
type eventSink struct {
	ctx      context.Context
	runID    string
	feed     string
	cursor   string
	seq      int
	callback CallbackSender
	logger   *slog.Logger
	err      error
}

func (s *eventSink) Start(cursor string, count int) {
	s.cursor = cursor
	s.seq = 0
	s.logger.Debug("feed batch", "cursor", cursor, "count", count)
}

func (s *eventSink) emit(kind, ref string, at time.Time, payload any) twikey.Action {
	s.seq++
	if s.callback == nil {
		s.logger.Debug("no callback configured, skipping event", "kind", kind, "ref", ref)
		return twikey.Continue
	}

	event := FeedEvent{
		RunID:     s.runID,
		Feed:      s.feed,
		Kind:      kind,
		Reference: ref,
		Cursor:    s.cursor,
		Seq:       s.seq,
		Payload:   payload,
	}
	if !at.IsZero() {
		event.At = &at
	}

	if err := s.callback.Send(s.ctx, event); err != nil {
		s.err = errors.Wrap(err, "deliver %s %s event %s", s.feed, kind, ref)
		return twikey.Stop
	}
	return twikey.Continue
}

func (s *eventSink) NewDocument(doc twikey.Document, at time.Time) twikey.Action {
	return s.emit(KindCreated, doc.MandateNumber, at, doc)
}

func (s *eventSink) UpdatedDocument(original string, doc twikey.Document, reason, author string, at time.Time) twikey.Action {
	return s.emit(KindAmended, original, at, MandateChange{Document: &doc, Reason: reason, Author: author})
}

func (s *eventSink) CancelledDocument(number, reason, author string, at time.Time) twikey.Action {
	return s.emit(KindCancelled, number, at, MandateChange{Reason: reason, Author: author})
}

func (s *eventSink) Invoice(inv twikey.Invoice) twikey.Action {
	return s.emit(KindUpdated, inv.ID, time.Time{}, inv)
}

func (s *eventSink) Transaction(tx twikey.Transaction) twikey.Action {
	return s.emit(KindUpdated, fmt.Sprint(tx.ID), time.Time{}, tx)
}

func (s *eventSink) Paylink(link twikey.Paylink) twikey.Action {
	return s.emit(KindUpdated, fmt.Sprint(link.ID), time.Time{}, link)
}

func (s *eventSink) Refund(refund twikey.Refund) twikey.Action {
	return s.emit(KindUpdated, refund.ID, time.Time{}, refund)
}
