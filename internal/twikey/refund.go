package twikey

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// Refund is a credit transfer to a beneficiary account.
type Refund struct {
	ID       string  `json:"id"`
	IBAN     string  `json:"iban,omitempty"`
	BIC      string  `json:"bic,omitempty"`
	Amount   float64 `json:"amount"`
	Msg      string  `json:"msg,omitempty"`
	Place    string  `json:"place,omitempty"`
	Ref      string  `json:"ref,omitempty"`
	Date     string  `json:"date,omitempty"`
	State    string  `json:"state,omitempty"`
	BankDate string  `json:"bkdate,omitempty"`
}

// RefundFeedHandler consumes the credit transfer feed.
type RefundFeedHandler interface {
	Refund(refund Refund) Action
}

// RefundHandlerFunc adapts a function to RefundFeedHandler.
type RefundHandlerFunc func(Refund) Action

func (f RefundHandlerFunc) Refund(refund Refund) Action { return f(refund) }

// FeedRefunds delivers every refund whose state changed since the last poll.
func (c *Client) FeedRefunds(ctx context.Context, h RefundFeedHandler, opts ...FeedOption) (FeedResult, error) {
	spec := feedSpec{
		name:     "refund feed",
		path:     "/transfer",
		itemsKey: "Entries",
	}
	return runFlatFeed(ctx, c, spec, applyFeedOptions(opts), h, h.Refund)
}

// RefundRequest sends money back to a registered beneficiary.
type RefundRequest struct {
	IBAN    string
	Message string
	Amount  float64
	Ref     string
	Place   string
	Date    string
}

func (r RefundRequest) form() url.Values {
	return formFields{
		{"iban", r.IBAN},
		{"message", r.Message},
		{"amount", formatAmount(r.Amount)},
		{"ref", r.Ref},
		{"place", r.Place},
		{"date", r.Date},
	}.values()
}

// CreateRefund creates a credit transfer to a beneficiary.
func (c *Client) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if req.IBAN == "" {
		return nil, errors.New("iban is required")
	}
	if req.Amount <= 0 {
		return nil, errors.New("amount must be positive")
	}

	resp, err := c.call(ctx, request{op: "create refund", method: http.MethodPost, path: "/transfer", form: req.form()})
	if err != nil {
		return nil, err
	}

	var entries struct {
		Entries []Refund `json:"Entries"`
	}
	if err := resp.decode("create refund", &entries); err != nil {
		return nil, err
	}
	if len(entries.Entries) == 0 {
		return nil, &TransportError{Context: "create refund", Err: errors.New("response without entries")}
	}
	return &entries.Entries[0], nil
}
