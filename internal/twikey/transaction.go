package twikey

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// Transaction is a collection on a mandate.
type Transaction struct {
	ID            int64   `json:"id"`
	ContractID    int64   `json:"contractId,omitempty"`
	Contract      string  `json:"contract,omitempty"`
	MandateNumber string  `json:"mndtId,omitempty"`
	Amount        float64 `json:"amount"`
	Msg           string  `json:"msg,omitempty"`
	Place         string  `json:"place,omitempty"`
	Ref           string  `json:"ref,omitempty"`
	Date          string  `json:"date,omitempty"`
	State         string  `json:"state,omitempty"`
	ReqCollDate   string  `json:"reqcolldt,omitempty"`
	Final         bool    `json:"final,omitempty"`
	BankError     string  `json:"bkerror,omitempty"`
	BankMsg       string  `json:"bkmsg,omitempty"`
	BankDate      string  `json:"bkdate,omitempty"`
	LastUpdate    string  `json:"lastupdate,omitempty"`
}

// IsPaid reports whether the transaction was paid. The state can still change later.
func (t Transaction) IsPaid() bool { return t.State == "PAID" }

func (t Transaction) IsError() bool { return t.State == "ERROR" }

// TransactionFeedHandler consumes the transaction feed.
type TransactionFeedHandler interface {
	Transaction(tx Transaction) Action
}

// TransactionHandlerFunc adapts a function to TransactionFeedHandler.
type TransactionHandlerFunc func(Transaction) Action

func (f TransactionHandlerFunc) Transaction(tx Transaction) Action { return f(tx) }

// FeedTransactions delivers every transaction whose state changed since the last poll.
func (c *Client) FeedTransactions(ctx context.Context, h TransactionFeedHandler, opts ...FeedOption) (FeedResult, error) {
	o := applyFeedOptions(opts)
	spec := feedSpec{
		name:     "transaction feed",
		path:     "/transaction",
		itemsKey: "Entries",
	}
	if len(o.includes) > 0 {
		spec.query = url.Values{"include": o.includes}
	}
	return runFlatFeed(ctx, c, spec, o, h, h.Transaction)
}

// TransactionRequest adds a transaction to a mandate.
type TransactionRequest struct {
	MandateNumber string
	Message       string
	Ref           string
	Amount        float64
	Place         string
	ReqCollDate   string
}

func (r TransactionRequest) form() url.Values {
	return formFields{
		{"mndtId", r.MandateNumber},
		{"message", r.Message},
		{"ref", r.Ref},
		{"amount", formatAmount(r.Amount)},
		{"place", r.Place},
		{"reqcolldt", r.ReqCollDate},
	}.values()
}

// CreateTransaction adds a transaction to the next collection of a mandate.
func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if req.MandateNumber == "" {
		return nil, errors.New("mandate number is required")
	}
	if req.Amount <= 0 {
		return nil, errors.New("amount must be positive")
	}

	resp, err := c.call(ctx, request{op: "create transaction", method: http.MethodPost, path: "/transaction", form: req.form()})
	if err != nil {
		return nil, err
	}

	var entries struct {
		Entries []Transaction `json:"Entries"`
	}
	if err := resp.decode("create transaction", &entries); err != nil {
		return nil, err
	}
	if len(entries.Entries) == 0 {
		return nil, &TransportError{Context: "create transaction", Err: errors.New("response without entries")}
	}
	return &entries.Entries[0], nil
}
