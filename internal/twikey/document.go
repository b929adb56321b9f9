package twikey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Document is a mandate as reported by the mandate feed and the detail endpoint.
type Document struct {
	MandateNumber      string            `json:"mandateNumber"`
	State              string            `json:"state,omitempty"`
	Type               string            `json:"type,omitempty"`
	SequenceType       string            `json:"sequenceType,omitempty"`
	SignDate           string            `json:"signDate,omitempty"`
	DebtorName         string            `json:"debtorName,omitempty"`
	DebtorStreet       string            `json:"debtorStreet,omitempty"`
	DebtorCity         string            `json:"debtorCity,omitempty"`
	DebtorZip          string            `json:"debtorZip,omitempty"`
	DebtorCountry      string            `json:"debtorCountry,omitempty"`
	VATNumber          string            `json:"vatNumber,omitempty"`
	CountryOfResidence string            `json:"countryOfResidence,omitempty"`
	DebtorEmail        string            `json:"debtorEmail,omitempty"`
	CustomerNumber     string            `json:"customerNumber,omitempty"`
	IBAN               string            `json:"iban,omitempty"`
	BIC                string            `json:"bic,omitempty"`
	DebtorBank         string            `json:"debtorBank,omitempty"`
	ContractNumber     string            `json:"contractNumber,omitempty"`
	SupplementaryData  map[string]string `json:"supplementaryData,omitempty"`
}

// mandateWire mirrors the pain.012 style Mndt object. Nested objects may be absent.
type mandateWire struct {
	MndtID    string `json:"MndtId"`
	LclInstrm string `json:"LclInstrm"`
	Ocrncs    struct {
		SeqTp string `json:"SeqTp"`
		Drtn  struct {
			FrDt string `json:"FrDt"`
		} `json:"Drtn"`
	} `json:"Ocrncs"`
	Dbtr struct {
		Nm      string `json:"Nm"`
		PstlAdr struct {
			AdrLine string `json:"AdrLine"`
			TwnNm   string `json:"TwnNm"`
			PstCd   string `json:"PstCd"`
			Ctry    string `json:"Ctry"`
		} `json:"PstlAdr"`
		ID        string `json:"Id"`
		CtryOfRes string `json:"CtryOfRes"`
		CtctDtls  struct {
			EmailAdr string `json:"EmailAdr"`
			Othr     string `json:"Othr"`
		} `json:"CtctDtls"`
	} `json:"Dbtr"`
	DbtrAcct string `json:"DbtrAcct"`
	DbtrAgt  struct {
		FinInstnID struct {
			BICFI string `json:"BICFI"`
			Nm    string `json:"Nm"`
		} `json:"FinInstnId"`
	} `json:"DbtrAgt"`
	RfrdDoc     string `json:"RfrdDoc"`
	SplmtryData []struct {
		Key   string          `json:"Key"`
		Value json.RawMessage `json:"Value"`
	} `json:"SplmtryData"`
}

func decodeMandate(raw json.RawMessage) (Document, error) {
	var m mandateWire
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return Document{}, err
		}
	}

	doc := Document{
		MandateNumber:      m.MndtID,
		Type:               m.LclInstrm,
		SequenceType:       m.Ocrncs.SeqTp,
		SignDate:           m.Ocrncs.Drtn.FrDt,
		DebtorName:         m.Dbtr.Nm,
		DebtorStreet:       m.Dbtr.PstlAdr.AdrLine,
		DebtorCity:         m.Dbtr.PstlAdr.TwnNm,
		DebtorZip:          m.Dbtr.PstlAdr.PstCd,
		DebtorCountry:      m.Dbtr.PstlAdr.Ctry,
		VATNumber:          m.Dbtr.ID,
		CountryOfResidence: m.Dbtr.CtryOfRes,
		DebtorEmail:        m.Dbtr.CtctDtls.EmailAdr,
		CustomerNumber:     m.Dbtr.CtctDtls.Othr,
		IBAN:               m.DbtrAcct,
		BIC:                m.DbtrAgt.FinInstnID.BICFI,
		DebtorBank:         m.DbtrAgt.FinInstnID.Nm,
		ContractNumber:     m.RfrdDoc,
	}
	if len(m.SplmtryData) > 0 {
		doc.SupplementaryData = make(map[string]string, len(m.SplmtryData))
		for _, item := range m.SplmtryData {
			doc.SupplementaryData[item.Key] = rawString(item.Value)
		}
	}
	return doc, nil
}

// DocumentEvent is one classified mandate feed message: DocumentCreated, DocumentAmended or
// DocumentCancelled.
type DocumentEvent interface {
	EventTime() time.Time
	documentEvent()
}

// DocumentCreated reports a newly available mandate.
type DocumentCreated struct {
	Document Document
	At       time.Time
}

// DocumentAmended reports a change to an existing mandate.
type DocumentAmended struct {
	OriginalMandateNumber string
	Document              Document
	Reason                string
	Author                string
	At                    time.Time
}

// DocumentCancelled reports a cancelled mandate.
type DocumentCancelled struct {
	MandateNumber string
	Reason        string
	Author        string
	At            time.Time
}

func (e DocumentCreated) EventTime() time.Time   { return e.At }
func (e DocumentAmended) EventTime() time.Time   { return e.At }
func (e DocumentCancelled) EventTime() time.Time { return e.At }

func (DocumentCreated) documentEvent()   {}
func (DocumentAmended) documentEvent()   {}
func (DocumentCancelled) documentEvent() {}

type reasonWire struct {
	Rsn   json.RawMessage `json:"Rsn"`
	Orgtr struct {
		CtctDtls struct {
			EmailAdr string `json:"EmailAdr"`
		} `json:"CtctDtls"`
	} `json:"Orgtr"`
}

func decodeReason(raw json.RawMessage) (reason, author string, err error) {
	var r reasonWire
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", "", err
	}
	return rawString(r.Rsn), r.Orgtr.CtctDtls.EmailAdr, nil
}

// ClassifyDocumentEvent decides the event kind by the keys present in the message: an AmdmntRsn
// key means amendment, otherwise a CxlRsn key means cancellation, otherwise it is a creation.
// Amendment payloads can be supersets of the others so the probe order matters.
func ClassifyDocumentEvent(raw []byte) (DocumentEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode mandate message: %w", err)
	}

	at, err := parseEventTime(fields["EvtTime"])
	if err != nil {
		return nil, err
	}

	if amendment, ok := fields["AmdmntRsn"]; ok {
		doc, err := decodeMandate(fields["Mndt"])
		if err != nil {
			return nil, fmt.Errorf("decode Mndt: %w", err)
		}
		reason, author, err := decodeReason(amendment)
		if err != nil {
			return nil, fmt.Errorf("decode AmdmntRsn: %w", err)
		}
		return DocumentAmended{
			OriginalMandateNumber: rawString(fields["OrgnlMndtId"]),
			Document:              doc,
			Reason:                reason,
			Author:                author,
			At:                    at,
		}, nil
	}

	if cancellation, ok := fields["CxlRsn"]; ok {
		reason, author, err := decodeReason(cancellation)
		if err != nil {
			return nil, fmt.Errorf("decode CxlRsn: %w", err)
		}
		return DocumentCancelled{
			MandateNumber: rawString(fields["OrgnlMndtId"]),
			Reason:        reason,
			Author:        author,
			At:            at,
		}, nil
	}

	doc, err := decodeMandate(fields["Mndt"])
	if err != nil {
		return nil, fmt.Errorf("decode Mndt: %w", err)
	}
	return DocumentCreated{Document: doc, At: at}, nil
}

// DocumentFeedHandler consumes the mandate feed. Returning Stop ends the feed call.
// Handlers may also implement BatchStarter.
type DocumentFeedHandler interface {
	NewDocument(doc Document, at time.Time) Action
	UpdatedDocument(originalMandateNumber string, doc Document, reason, author string, at time.Time) Action
	CancelledDocument(mandateNumber, reason, author string, at time.Time) Action
}

// DocumentEventFunc adapts a single function to DocumentFeedHandler.
type DocumentEventFunc func(DocumentEvent) Action

func (f DocumentEventFunc) NewDocument(doc Document, at time.Time) Action {
	return f(DocumentCreated{Document: doc, At: at})
}

func (f DocumentEventFunc) UpdatedDocument(original string, doc Document, reason, author string, at time.Time) Action {
	return f(DocumentAmended{OriginalMandateNumber: original, Document: doc, Reason: reason, Author: author, At: at})
}

func (f DocumentEventFunc) CancelledDocument(number, reason, author string, at time.Time) Action {
	return f(DocumentCancelled{MandateNumber: number, Reason: reason, Author: author, At: at})
}

func dispatchDocumentEvent(h DocumentFeedHandler, evt DocumentEvent) Action {
	switch e := evt.(type) {
	case DocumentAmended:
		return h.UpdatedDocument(e.OriginalMandateNumber, e.Document, e.Reason, e.Author, e.At)
	case DocumentCancelled:
		return h.CancelledDocument(e.MandateNumber, e.Reason, e.Author, e.At)
	case DocumentCreated:
		return h.NewDocument(e.Document, e.At)
	}
	return Stop
}

// FeedDocuments delivers new, updated and cancelled mandates since the last poll, in the order
// the server reports them, until the feed is exhausted or the handler returns Stop.
func (c *Client) FeedDocuments(ctx context.Context, h DocumentFeedHandler, opts ...FeedOption) (FeedResult, error) {
	spec := feedSpec{
		name:     "mandate feed",
		path:     "/mandate",
		query:    url.Values{"include": {"id", "mandate", "person"}},
		itemsKey: "Messages",
	}
	starter, _ := h.(BatchStarter)

	return c.runFeed(ctx, spec, applyFeedOptions(opts), starter, func(raw json.RawMessage) (Action, error) {
		evt, err := ClassifyDocumentEvent(raw)
		if err != nil {
			return Stop, &TransportError{Context: spec.name, Err: err}
		}
		c.logger.Debug("mandate feed event", "kind", fmt.Sprintf("%T", evt))
		return dispatchDocumentEvent(h, evt), nil
	})
}

// InviteRequest prepares a mandate for signature.
type InviteRequest struct {
	CT             int64
	Email          string
	FirstName      string
	LastName       string
	CompanyName    string
	Language       string
	Mobile         string
	Address        string
	City           string
	Zip            string
	Country        string
	IBAN           string
	BIC            string
	MandateNumber  string
	ContractNumber string
	CustomerNumber string
	Amount         float64
}

func (r InviteRequest) form() url.Values {
	return formFields{
		{"ct", strconv.FormatInt(r.CT, 10)},
		{"email", r.Email},
		{"firstname", r.FirstName},
		{"lastname", r.LastName},
		{"companyName", r.CompanyName},
		{"l", r.Language},
		{"mobile", r.Mobile},
		{"address", r.Address},
		{"city", r.City},
		{"zip", r.Zip},
		{"country", r.Country},
		{"iban", r.IBAN},
		{"bic", r.BIC},
		{"mandateNumber", r.MandateNumber},
		{"contractNumber", r.ContractNumber},
		{"customerNumber", r.CustomerNumber},
		{"amount", formatAmount(r.Amount)},
	}.values()
}

// InviteResponse holds the signing link of a prepared mandate.
type InviteResponse struct {
	URL           string `json:"url"`
	Key           string `json:"key"`
	MandateNumber string `json:"mndtId"`
}

// InviteDocument prepares a mandate and returns the link the debtor signs it with.
func (c *Client) InviteDocument(ctx context.Context, req InviteRequest) (*InviteResponse, error) {
	if req.CT == 0 {
		return nil, errors.New("ct is required")
	}

	resp, err := c.call(ctx, request{op: "invite", method: http.MethodPost, path: "/invite", form: req.form()})
	if err != nil {
		return nil, err
	}

	var invite InviteResponse
	if err := resp.decode("invite", &invite); err != nil {
		return nil, err
	}
	return &invite, nil
}

// FetchDocument retrieves a mandate; its state comes from the X-STATE response header.
func (c *Client) FetchDocument(ctx context.Context, mandateNumber string) (*Document, error) {
	if mandateNumber == "" {
		return nil, errors.New("mandate number is required")
	}

	resp, err := c.call(ctx, request{
		op:     "mandate detail",
		method: http.MethodGet,
		path:   "/mandate/detail",
		query:  url.Values{"mndtId": {mandateNumber}},
	})
	if err != nil {
		return nil, err
	}

	var detail struct {
		Mndt json.RawMessage `json:"Mndt"`
	}
	if err := resp.decode("mandate detail", &detail); err != nil {
		return nil, err
	}
	doc, err := decodeMandate(detail.Mndt)
	if err != nil {
		return nil, &TransportError{Context: "mandate detail", Err: err}
	}
	doc.State = resp.header.Get(headerState)
	return &doc, nil
}

// CancelDocument cancels a mandate with the given reason.
func (c *Client) CancelDocument(ctx context.Context, mandateNumber, reason string) error {
	if mandateNumber == "" {
		return errors.New("mandate number is required")
	}

	_, err := c.call(ctx, request{
		op:     "cancel mandate",
		method: http.MethodDelete,
		path:   "/mandate",
		query:  url.Values{"mndtId": {mandateNumber}, "rsn": {reason}},
	})
	return err
}
