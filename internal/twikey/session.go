package twikey

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// SessionLifetime is how long a login token is reused before the client logs in again.
	SessionLifetime = 23 * time.Hour

	vendorPrefix = "own"
	otpStep      = 30
	otpModulo    = 100_000_000
)

// EnsureSession logs in when no token is held or the held one is older than SessionLifetime.
// It is a no-op while the token is fresh.
func (c *Client) EnsureSession(ctx context.Context) error {
	_, err := c.ensureSession(ctx)
	return err
}

// MerchantID returns the merchant id reported at the last login.
func (c *Client) MerchantID() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.merchantID
}

func (c *Client) ensureSession(ctx context.Context) (string, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.token != "" && c.now().Sub(c.obtainedAt) <= SessionLifetime {
		return c.token, nil
	}

	if err := c.validate(); err != nil {
		return "", &AuthError{Op: "login", Err: err}
	}

	form := url.Values{}
	form.Set("apiToken", c.apiKey)
	if c.privateKey != "" {
		code, err := OneTimeCode(vendorPrefix, c.privateKey, c.now())
		if err != nil {
			return "", &AuthError{Op: "login", Err: err}
		}
		form.Set("otp", strconv.FormatUint(uint64(code), 10))
	}

	c.logger.Debug("authenticating with twikey", "base_url", c.baseURL)
	resp, err := c.send(ctx, request{op: "login", method: http.MethodPost, form: form}, "")
	if err != nil {
		return "", &AuthError{Op: "login", Err: err}
	}

	if code := resp.header.Get(headerAPIErrorCode); code != "" {
		return "", &AuthError{Op: "login", Code: code, Message: resp.header.Get(headerAPIError)}
	}
	if retry := resp.header.Get(headerRetryAfter); retry != "" || resp.statusCode == http.StatusTooManyRequests {
		if retry == "" {
			retry = "unspecified"
		}
		return "", &AuthError{Op: "login", RetryAfter: retry}
	}
	if resp.statusCode >= 400 {
		return "", &AuthError{Op: "login", Code: strconv.Itoa(resp.statusCode), Message: http.StatusText(resp.statusCode)}
	}

	token := resp.header.Get("Authorization")
	if token == "" {
		return "", &AuthError{Op: "login", Code: "missing_authorization", Message: "login response carried no Authorization header"}
	}

	c.token = token
	c.obtainedAt = c.now()
	c.merchantID = resp.header.Get(headerMerchantID)
	c.logger.Info("twikey session established", "merchant_id", c.merchantID)

	return token, nil
}

// Logout invalidates the current token on the server and clears it locally.
func (c *Client) Logout(ctx context.Context) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.token == "" {
		return nil
	}

	resp, err := c.send(ctx, request{op: "logout", method: http.MethodGet}, c.token)
	if err != nil {
		return &AuthError{Op: "logout", Err: err}
	}
	if code := resp.header.Get(headerAPIErrorCode); code != "" {
		return &AuthError{Op: "logout", Code: code, Message: resp.header.Get(headerAPIError)}
	}

	c.token = ""
	c.obtainedAt = time.Time{}
	return nil
}

// OneTimeCode derives the 8 digit login code for the 30 second window containing t.
// The HMAC-SHA256 key is prefix followed by the hex decoded secret.
func OneTimeCode(prefix, secretHex string, t time.Time) (uint32, error) {
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return 0, &ConfigError{Field: "private key", Reason: "must be hex encoded"}
	}

	key := append([]byte(prefix), secret...)

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(t.Unix()/otpStep))

	mac := hmac.New(sha256.New, key)
	mac.Write(counter[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return value % otpModulo, nil
}
