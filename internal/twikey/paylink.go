package twikey

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

// Paylink is the current state of a payment link.
type Paylink struct {
	ID       int64          `json:"id"`
	CT       int64          `json:"ct,omitempty"`
	Amount   float64        `json:"amount"`
	Msg      string         `json:"msg,omitempty"`
	Ref      string         `json:"ref,omitempty"`
	State    string         `json:"state"`
	Customer *Customer      `json:"customer,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	Time     *PaylinkTimes  `json:"time,omitempty"`
}

type PaylinkTimes struct {
	Creation   string `json:"creation,omitempty"`
	Expiration string `json:"expiration,omitempty"`
	LastUpdate string `json:"lastupdate,omitempty"`
}

// PaylinkFeedHandler consumes the payment link feed.
type PaylinkFeedHandler interface {
	Paylink(link Paylink) Action
}

// PaylinkHandlerFunc adapts a function to PaylinkFeedHandler.
type PaylinkHandlerFunc func(Paylink) Action

func (f PaylinkHandlerFunc) Paylink(link Paylink) Action { return f(link) }

// FeedPaylinks delivers every payment link created or updated since the last poll.
func (c *Client) FeedPaylinks(ctx context.Context, h PaylinkFeedHandler, opts ...FeedOption) (FeedResult, error) {
	spec := feedSpec{
		name:     "paylink feed",
		path:     "/payment/link/feed",
		itemsKey: "Links",
	}
	return runFlatFeed(ctx, c, spec, applyFeedOptions(opts), h, h.Paylink)
}

// PaylinkRequest creates a payment link.
type PaylinkRequest struct {
	CT          int64
	Title       string
	Remittance  string
	Amount      float64
	Message     string
	Ref         string
	Email       string
	FirstName   string
	LastName    string
	Language    string
	Mobile      string
	RedirectURL string
	Method      string
}

func (r PaylinkRequest) form() url.Values {
	return formFields{
		{"ct", formatID(r.CT)},
		{"title", r.Title},
		{"remittance", r.Remittance},
		{"amount", formatAmount(r.Amount)},
		{"message", r.Message},
		{"ref", r.Ref},
		{"email", r.Email},
		{"firstname", r.FirstName},
		{"lastname", r.LastName},
		{"l", r.Language},
		{"mobile", r.Mobile},
		{"redirectUrl", r.RedirectURL},
		{"method", r.Method},
	}.values()
}

// CreatedPaylink is the link returned on creation.
type CreatedPaylink struct {
	ID     int64   `json:"id"`
	URL    string  `json:"url"`
	Amount float64 `json:"amount"`
	Msg    string  `json:"msg,omitempty"`
}

func (p CreatedPaylink) String() string {
	return "paylink " + strconv.FormatInt(p.ID, 10) + " " + p.URL
}

// CreatePaylink creates a payment link the customer can pay with.
func (c *Client) CreatePaylink(ctx context.Context, req PaylinkRequest) (*CreatedPaylink, error) {
	if req.Amount <= 0 {
		return nil, errors.New("amount must be positive")
	}
	if req.Message == "" {
		return nil, errors.New("message is required")
	}

	resp, err := c.call(ctx, request{op: "create paylink", method: http.MethodPost, path: "/payment/link", form: req.form()})
	if err != nil {
		return nil, err
	}

	var link CreatedPaylink
	if err := resp.decode("create paylink", &link); err != nil {
		return nil, err
	}
	return &link, nil
}
