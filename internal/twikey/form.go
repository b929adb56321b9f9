package twikey

import (
	"net/url"
	"strconv"
)

// formField maps one request field onto its wire name.
type formField struct {
	name  string
	value string
}

type formFields []formField

// values encodes the non-empty fields in table order.
func (f formFields) values() url.Values {
	v := url.Values{}
	for _, field := range f {
		if field.value != "" {
			v.Add(field.name, field.value)
		}
	}
	return v
}

func formatAmount(amount float64) string {
	if amount == 0 {
		return ""
	}
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
