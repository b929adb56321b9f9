package twikey

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key"

// fakeTwikey is a scripted creditor API: logins hand out numbered tokens and feed routes serve
// batches in order.
type fakeTwikey struct {
	mux    *http.ServeMux
	logins atomic.Int32

	mu       sync.Mutex
	requests []*http.Request
}

func newFakeTwikey() *fakeTwikey {
	f := &fakeTwikey{mux: http.NewServeMux()}
	f.mux.HandleFunc("POST /creditor", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("apiToken") != testAPIKey {
			w.Header().Set("ApiErrorCode", "err_invalid_apikey")
			w.Header().Set("ApiError", "Invalid apiToken")
			return
		}
		n := f.logins.Add(1)
		w.Header().Set("Authorization", fmt.Sprintf("token-%d", n))
		w.Header().Set("X-MERCHANT-ID", "42")
	})
	return f
}

func (f *fakeTwikey) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Clone(r.Context()))
		f.mu.Unlock()
		h(w, r)
	})
}

func (f *fakeTwikey) recorded() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

type feedBatch struct {
	cursor string
	items  []string
}

// serveBatches answers successive feed polls with the given batches, then with errors.
func serveBatches(key string, batches ...feedBatch) http.HandlerFunc {
	var (
		mu    sync.Mutex
		calls int
	)
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if calls >= len(batches) {
			http.Error(w, "unexpected feed poll", http.StatusInternalServerError)
			return
		}
		b := batches[calls]
		calls++
		if b.cursor != "" {
			w.Header().Set("X-LAST", b.cursor)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{%q:[%s]}`, key, strings.Join(b.items, ","))
	}
}

func newTestClient(t *testing.T, f *fakeTwikey, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	client, err := New(testAPIKey, srv.URL, opts...)
	require.NoError(t, err)
	return client
}

// testClock is a manually advanced time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
