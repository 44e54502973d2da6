package payment

import (
	"fmt"
	"net/mail"
	"strings"
)

// Kind names a payment method variant.
type Kind string

const (
	KindCard   Kind = "card"
	KindMTN    Kind = "mtn_momo"
	KindAirtel Kind = "airtel_money"
)

// Kinds lists the supported method kinds.
var Kinds = []Kind{KindCard, KindMTN, KindAirtel}

func (k Kind) Valid() bool {
	switch k {
	case KindCard, KindMTN, KindAirtel:
		return true
	}
	return false
}

// Method is a payment method. The set of implementations is closed.
type Method interface {
	Kind() Kind
	sealed()
}

// CardMethod pays through the hosted card/bank checkout.
type CardMethod struct {
	Email   string
	Country string
}

// MTNMethod pays with MTN Mobile Money; PhoneNumber is an MSISDN in international format without '+'.
type MTNMethod struct {
	PhoneNumber string
}

// AirtelMethod pays with Airtel Money; PhoneNumber is an MSISDN in international format without '+'.
type AirtelMethod struct {
	PhoneNumber string
}

func (CardMethod) Kind() Kind   { return KindCard }
func (MTNMethod) Kind() Kind    { return KindMTN }
func (AirtelMethod) Kind() Kind { return KindAirtel }

func (CardMethod) sealed()   {}
func (MTNMethod) sealed()    {}
func (AirtelMethod) sealed() {}

// Details is the loosely typed method data accepted from clients.
type Details struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Country     string `json:"country,omitempty"`
}

// ParseMethod validates details for kind and returns the typed variant.
func ParseMethod(kind Kind, d Details) (Method, error) {
	switch kind {
	case KindCard:
		if _, err := mail.ParseAddress(d.Email); err != nil {
			return nil, fmt.Errorf("%w: card payments need a valid email", ErrInvalidMethod)
		}
		return CardMethod{Email: d.Email, Country: strings.ToUpper(d.Country)}, nil
	case KindMTN:
		phone, err := NormalizePhone(d.PhoneNumber)
		if err != nil {
			return nil, err
		}
		return MTNMethod{PhoneNumber: phone}, nil
	case KindAirtel:
		phone, err := NormalizePhone(d.PhoneNumber)
		if err != nil {
			return nil, err
		}
		return AirtelMethod{PhoneNumber: phone}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, kind)
}

// PhoneNumber returns the MSISDN of mobile money methods and "" otherwise.
func PhoneNumber(m Method) string {
	switch v := m.(type) {
	case MTNMethod:
		return v.PhoneNumber
	case AirtelMethod:
		return v.PhoneNumber
	}
	return ""
}

// NormalizePhone strips formatting from an MSISDN and checks it has 8 to 15 digits.
func NormalizePhone(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidPhoneNumber, r)
		}
	}
	out := b.String()
	if len(out) < 8 || len(out) > 15 {
		return "", fmt.Errorf("%w: expected 8 to 15 digits", ErrInvalidPhoneNumber)
	}
	return out, nil
}
