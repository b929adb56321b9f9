package twikey

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testPrivateKey = "d2ac73a7bd1cd5e4bd0ba1c32d94a06f4ac6c04db8863bd7d61fc8c2df8c8c1b"

func TestEnsureSessionLogsInOnce(t *testing.T) {
	f := newFakeTwikey()
	client := newTestClient(t, f)

	require.NoError(t, client.EnsureSession(context.Background()))
	require.NoError(t, client.EnsureSession(context.Background()))

	require.EqualValues(t, 1, f.logins.Load())
	require.Equal(t, "42", client.MerchantID())
}

func TestEnsureSessionRefreshesAfterLifetime(t *testing.T) {
	f := newFakeTwikey()
	clock := &testClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	client := newTestClient(t, f, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, client.EnsureSession(ctx))
	clock.Advance(SessionLifetime)
	require.NoError(t, client.EnsureSession(ctx))
	require.EqualValues(t, 1, f.logins.Load())

	clock.Advance(time.Second)
	require.NoError(t, client.EnsureSession(ctx))
	require.NoError(t, client.EnsureSession(ctx))
	require.EqualValues(t, 2, f.logins.Load())
}

func TestEnsureSessionConcurrentCallersShareLogin(t *testing.T) {
	f := newFakeTwikey()
	client := newTestClient(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = client.EnsureSession(context.Background())
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, f.logins.Load())
}

func TestEnsureSessionRejectedKey(t *testing.T) {
	f := newFakeTwikey()
	client := newTestClient(t, f)
	client.apiKey = "wrong"

	err := client.EnsureSession(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "err_invalid_apikey", authErr.Code)
	require.Equal(t, "Invalid apiToken", authErr.Message)
}

func TestEnsureSessionRateLimited(t *testing.T) {
	f := &fakeTwikey{mux: http.NewServeMux()}
	f.mux.HandleFunc("POST /creditor", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client := newTestClient(t, f)

	err := client.EnsureSession(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "60", authErr.RetryAfter)
}

func TestEnsureSessionMissingAuthorizationHeader(t *testing.T) {
	f := &fakeTwikey{mux: http.NewServeMux()}
	f.mux.HandleFunc("POST /creditor", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, f)

	err := client.EnsureSession(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "missing_authorization", authErr.Code)
}

func TestEnsureSessionUnreachableServer(t *testing.T) {
	client, err := New(testAPIKey, "http://127.0.0.1:1", WithRequestTimeout(time.Second))
	require.NoError(t, err)

	err = client.EnsureSession(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "login", transportErr.Context)
}

func TestEnsureSessionSendsOneTimeCode(t *testing.T) {
	otp := make(chan string, 1)
	f := &fakeTwikey{mux: http.NewServeMux()}
	f.mux.HandleFunc("POST /creditor", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		otp <- r.PostForm.Get("otp")
		w.Header().Set("Authorization", "token-otp")
	})
	clock := &testClock{now: time.Unix(1700000000, 0)}
	client := newTestClient(t, f, WithPrivateKey(testPrivateKey), WithClock(clock.Now))

	require.NoError(t, client.EnsureSession(context.Background()))
	require.Equal(t, "28964856", <-otp)
}

func TestOneTimeCodeKnownAnswers(t *testing.T) {
	cases := []struct {
		secret string
		unix   int64
		want   uint32
	}{
		{testPrivateKey, 1700000000, 28964856},
		{testPrivateKey, 1700000029, 24967947},
		{testPrivateKey, 1700000030, 24967947},
		{"00112233445566778899aabbccddeeff", 0, 89851033},
		{"00112233445566778899aabbccddeeff", 1234567890, 34682615},
	}

	for _, tc := range cases {
		code, err := OneTimeCode("own", tc.secret, time.Unix(tc.unix, 0))
		require.NoError(t, err)
		require.Equal(t, tc.want, code, "secret=%s unix=%d", tc.secret, tc.unix)
		require.Less(t, code, uint32(100_000_000))
	}
}

func TestOneTimeCodeRejectsNonHexSecret(t *testing.T) {
	_, err := OneTimeCode("own", "not-hex", time.Now())

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New("", "https://api.beta.twikey.com")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "API key", cfgErr.Field)

	_, err = New("key", " ")
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "base URL", cfgErr.Field)

	_, err = New("key", "https://api.beta.twikey.com", WithPrivateKey("zz"))
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "private key", cfgErr.Field)
}

func TestNewClientFromEnvDefaults(t *testing.T) {
	t.Setenv("TWIKEY_API_KEY", "env-key")
	t.Setenv("TWIKEY_BASE_URL", "")
	t.Setenv("TWIKEY_PRIVATE_KEY", "")
	t.Setenv("TWIKEY_USER_AGENT", "erp-sync/1.0")

	client, err := NewClientFromEnv(nil)
	require.NoError(t, err)
	require.Equal(t, "https://api.twikey.com", client.baseURL)
	require.Equal(t, "env-key", client.apiKey)
	require.Equal(t, "erp-sync/1.0", client.userAgent)
}

func TestNewClientFromEnvRequiresKey(t *testing.T) {
	t.Setenv("TWIKEY_API_KEY", "")

	_, err := NewClientFromEnv(nil)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestLogoutClearsSession(t *testing.T) {
	f := newFakeTwikey()
	f.handle("GET /creditor", func(w http.ResponseWriter, r *http.Request) {})
	client := newTestClient(t, f)
	ctx := context.Background()

	require.NoError(t, client.EnsureSession(ctx))
	require.NoError(t, client.Logout(ctx))
	reqs := f.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, "token-1", reqs[0].Header.Get("Authorization"))

	require.NoError(t, client.EnsureSession(ctx))
	require.EqualValues(t, 2, f.logins.Load())
}

func TestLogoutWithoutSessionIsNoop(t *testing.T) {
	f := newFakeTwikey()
	client := newTestClient(t, f)

	require.NoError(t, client.Logout(context.Background()))
	require.Empty(t, f.recorded())
}
