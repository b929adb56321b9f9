package twikey

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Action tells the feed loop whether to keep delivering events.
type Action int

const (
	// Continue asks for the next event.
	Continue Action = iota
	// Stop ends the feed call successfully without fetching further batches.
	Stop
)

func (a Action) String() string {
	if a == Stop {
		return "stop"
	}
	return "continue"
}

// BatchStarter is an optional handler capability. Start is invoked before the events of each
// non-empty batch with the X-LAST cursor the server reported and the number of events.
type BatchStarter interface {
	Start(cursor string, count int)
}

// FeedResult summarises one feed call.
type FeedResult struct {
	// Cursor is the X-LAST of the last batch whose events were all delivered, empty when none was.
	Cursor  string
	Batches int
	Events  int
	// Stopped is true when a handler returned Stop.
	Stopped bool
}

// FeedOption customizes a feed call.
type FeedOption func(*feedOptions)

type feedOptions struct {
	resumeAfter string
	includes    []string
}

// ResumeAfter seeds the first request with a previously stored cursor.
func ResumeAfter(cursor string) FeedOption {
	return func(o *feedOptions) {
		o.resumeAfter = cursor
	}
}

// Include requests extra sub-objects on feeds that support them (invoice, transaction).
func Include(values ...string) FeedOption {
	return func(o *feedOptions) {
		o.includes = append(o.includes, values...)
	}
}

func applyFeedOptions(opts []FeedOption) feedOptions {
	var o feedOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type feedSpec struct {
	name     string
	path     string
	query    url.Values
	itemsKey string
}

// runFeed is the pull loop shared by every feed. It fetches batches from the same URL until the
// server returns an empty one, hands each raw message to dispatch in server order and stops
// early, without error, when dispatch returns Stop. The resume header is only sent on the first
// request; the server tracks the position for the following polls.
//
// Delivery is at least once: a caller that does not persist FeedResult.Cursor (or the cursor
// passed to Start) will see events again after a restart.
func (c *Client) runFeed(ctx context.Context, spec feedSpec, o feedOptions, starter BatchStarter, dispatch func(json.RawMessage) (Action, error)) (FeedResult, error) {
	var result FeedResult

	header := http.Header{}
	if o.resumeAfter != "" {
		header.Set(headerResumeAfter, o.resumeAfter)
	}

	for {
		resp, err := c.call(ctx, request{
			op:     spec.name,
			method: http.MethodGet,
			path:   spec.path,
			query:  spec.query,
			header: header,
		})
		if err != nil {
			return result, err
		}
		header = nil

		items, err := decodeBatch(spec, resp.body)
		if err != nil {
			return result, err
		}
		if len(items) == 0 {
			c.logger.Debug("feed exhausted", "feed", spec.name, "batches", result.Batches, "events", result.Events)
			return result, nil
		}

		cursor := resp.header.Get(headerLast)
		if cursor == "" {
			return result, &TransportError{Context: spec.name, Err: ErrMissingCursor}
		}

		c.logger.Debug("feed batch", "feed", spec.name, "count", len(items), "from", o.resumeAfter, "till", cursor)
		if starter != nil {
			starter.Start(cursor, len(items))
		}
		result.Batches++

		for _, raw := range items {
			action, err := dispatch(raw)
			if err != nil {
				return result, err
			}
			result.Events++
			if action == Stop {
				c.logger.Debug("feed stopped by handler", "feed", spec.name, "cursor", cursor)
				result.Stopped = true
				return result, nil
			}
		}
		result.Cursor = cursor
	}
}

func decodeBatch(spec feedSpec, body []byte) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &TransportError{Context: spec.name, Err: fmt.Errorf("decode batch: %w", err)}
	}

	raw, ok := envelope[spec.itemsKey]
	if !ok {
		return nil, &TransportError{Context: spec.name, Err: fmt.Errorf("batch without %s", spec.itemsKey)}
	}
	if string(raw) == "null" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &TransportError{Context: spec.name, Err: fmt.Errorf("decode %s: %w", spec.itemsKey, err)}
	}
	return items, nil
}

// runFlatFeed drives feeds whose messages all carry the full current state of one record.
func runFlatFeed[T any](ctx context.Context, c *Client, spec feedSpec, o feedOptions, handler any, handle func(T) Action) (FeedResult, error) {
	starter, _ := handler.(BatchStarter)
	return c.runFeed(ctx, spec, o, starter, func(raw json.RawMessage) (Action, error) {
		var record T
		if err := json.Unmarshal(raw, &record); err != nil {
			return Stop, &TransportError{Context: spec.name, Err: fmt.Errorf("decode message: %w", err)}
		}
		return handle(record), nil
	})
}

var eventTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// parseEventTime reads an EvtTime value. An absent value yields the zero time.
func parseEventTime(raw json.RawMessage) (time.Time, error) {
	s := rawString(raw)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid event time %q", s)
}
