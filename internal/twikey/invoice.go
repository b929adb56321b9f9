package twikey

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// Invoice is the current state of an invoice.
type Invoice struct {
	ID            string         `json:"id"`
	Number        string         `json:"number"`
	Title         string         `json:"title,omitempty"`
	Remittance    string         `json:"remittance,omitempty"`
	Ref           string         `json:"ref,omitempty"`
	State         string         `json:"state"`
	Amount        float64        `json:"amount"`
	Date          string         `json:"date,omitempty"`
	DueDate       string         `json:"duedate,omitempty"`
	CT            int64          `json:"ct,omitempty"`
	URL           string         `json:"url,omitempty"`
	Lines         []InvoiceLine  `json:"lines,omitempty"`
	PaymentEvents []PaymentEvent `json:"lastpayment,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	Customer      *Customer      `json:"customer,omitempty"`
}

// InvoiceLine is a single line item on an invoice.
type InvoiceLine struct {
	Code        string  `json:"code,omitempty"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitprice"`
	UOM         string  `json:"uom,omitempty"`
	VATRate     float64 `json:"vatrate"`
	VATSum      float64 `json:"vatsum"`
}

// PaymentEvent is one payment attempt on an invoice.
type PaymentEvent struct {
	Action string `json:"action"`
	Double bool   `json:"double,omitempty"`
	// Method is one of sdd, rcc, paylink, transfer or manual.
	Method        string `json:"method"`
	Date          string `json:"date,omitempty"`
	ID            int64  `json:"id,omitempty"`
	E2E           string `json:"e2e,omitempty"`
	PmtInf        string `json:"pmtinf,omitempty"`
	MandateNumber string `json:"mndtid,omitempty"`
	RC            string `json:"rc,omitempty"`
	Link          int64  `json:"link,omitempty"`
	IBAN          string `json:"iban,omitempty"`
	BIC           string `json:"bic,omitempty"`
	Msg           string `json:"msg,omitempty"`
}

func (p PaymentEvent) PaidByLink() bool     { return p.Method == "paylink" }
func (p PaymentEvent) PaidBySDD() bool      { return p.Method == "sdd" }
func (p PaymentEvent) PaidByCard() bool     { return p.Method == "rcc" }
func (p PaymentEvent) PaidByTransfer() bool { return p.Method == "transfer" }
func (p PaymentEvent) PaidByOverride() bool { return p.Method == "manual" }

// Customer is the debtor attached to invoices and payment links.
type Customer struct {
	ID             int64  `json:"id,omitempty"`
	CustomerNumber string `json:"customerNumber,omitempty"`
	Email          string `json:"email,omitempty"`
	FirstName      string `json:"firstname,omitempty"`
	LastName       string `json:"lastname,omitempty"`
	CompanyName    string `json:"companyName,omitempty"`
	Address        string `json:"address,omitempty"`
	City           string `json:"city,omitempty"`
	Zip            string `json:"zip,omitempty"`
	Country        string `json:"country,omitempty"`
	Language       string `json:"l,omitempty"`
	Mobile         string `json:"mobile,omitempty"`
}

// InvoiceFeedHandler consumes the invoice feed.
type InvoiceFeedHandler interface {
	Invoice(inv Invoice) Action
}

// InvoiceHandlerFunc adapts a function to InvoiceFeedHandler.
type InvoiceHandlerFunc func(Invoice) Action

func (f InvoiceHandlerFunc) Invoice(inv Invoice) Action { return f(inv) }

// FeedInvoices delivers every invoice updated since the last poll. The customer is always
// included; Include adds further sub-objects such as "meta" or "lastpayment".
func (c *Client) FeedInvoices(ctx context.Context, h InvoiceFeedHandler, opts ...FeedOption) (FeedResult, error) {
	o := applyFeedOptions(opts)
	spec := feedSpec{
		name:     "invoice feed",
		path:     "/invoice",
		query:    url.Values{"include": append([]string{"customer"}, o.includes...)},
		itemsKey: "Invoices",
	}
	return runFlatFeed(ctx, c, spec, o, h, h.Invoice)
}

// FetchInvoice retrieves one invoice by id.
func (c *Client) FetchInvoice(ctx context.Context, id string, includes ...string) (*Invoice, error) {
	if id == "" {
		return nil, errors.New("invoice id is required")
	}

	var query url.Values
	if len(includes) > 0 {
		query = url.Values{"include": includes}
	}

	resp, err := c.call(ctx, request{
		op:     "invoice detail",
		method: http.MethodGet,
		path:   "/invoice/" + url.PathEscape(id),
		query:  query,
	})
	if err != nil {
		return nil, err
	}

	var inv Invoice
	if err := resp.decode("invoice detail", &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
