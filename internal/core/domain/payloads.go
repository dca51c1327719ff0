package domain

import "fmt"

// PaymentMethod identifies one of the supported purchase flows.
type PaymentMethod string

const (
	MethodCard        PaymentMethod = "CARD"
	MethodWidget      PaymentMethod = "WIDGET"
	MethodNequi       PaymentMethod = "NEQUI"
	MethodPSE         PaymentMethod = "PSE"
	MethodBancolombia PaymentMethod = "BANCOLOMBIA_TRANSFER"
)

// MethodPayload is the tagged payment-method variant submitted with a purchase.
// Card carries a previously issued token; the other methods carry their raw
// gateway fields and are forwarded as-is.
type MethodPayload interface {
	Method() PaymentMethod
	// Validate performs local, pre-network checks on the payload fields.
	Validate() error
}

// CardPayload purchases with a previously tokenized card.
type CardPayload struct {
	Token CardToken `json:"token"`
}

func (p CardPayload) Method() PaymentMethod { return MethodCard }

func (p CardPayload) Validate() error {
	if p.Token == "" {
		return NewFlowError(ErrValidation, "card token is required", CodeValidation)
	}
	return nil
}

// NequiPayload purchases through a Nequi phone push.
type NequiPayload struct {
	Phone string `json:"phone"`
}

func (p NequiPayload) Method() PaymentMethod { return MethodNequi }

func (p NequiPayload) Validate() error {
	if len(p.Phone) != 10 || !digitsOnly(p.Phone) {
		return NewFlowError(ErrValidation, "nequi phone must be a 10 digit number", CodeValidation)
	}
	return nil
}

// PSEUserType distinguishes natural from juridical persons for PSE transfers.
const (
	PSEUserNatural   = "0"
	PSEUserJuridical = "1"
)

// PSEPayload purchases through a PSE bank redirect.
type PSEPayload struct {
	BankCode string `json:"bank_code"`
	UserType string `json:"user_type"` // "0" natural, "1" juridical
	LegalID  string `json:"legal_id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

func (p PSEPayload) Method() PaymentMethod { return MethodPSE }

func (p PSEPayload) Validate() error {
	switch {
	case p.BankCode == "":
		return NewFlowError(ErrValidation, "bank code is required", CodeValidation)
	case p.UserType != PSEUserNatural && p.UserType != PSEUserJuridical:
		return NewFlowError(ErrValidation, fmt.Sprintf("user type must be %q or %q", PSEUserNatural, PSEUserJuridical), CodeValidation)
	case p.LegalID == "" || !digitsOnly(p.LegalID):
		return NewFlowError(ErrValidation, "legal id must be numeric", CodeValidation)
	case p.FullName == "":
		return NewFlowError(ErrValidation, "full name is required", CodeValidation)
	case len(p.Phone) != 10 || !digitsOnly(p.Phone):
		return NewFlowError(ErrValidation, "phone must be a 10 digit number", CodeValidation)
	}
	return nil
}

// BancolombiaPayload purchases through a Bancolombia transfer redirect.
// The gateway needs no extra fields for this method.
type BancolombiaPayload struct{}

func (p BancolombiaPayload) Method() PaymentMethod { return MethodBancolombia }

func (p BancolombiaPayload) Validate() error { return nil }

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
