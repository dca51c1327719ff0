package domain

import (
	"strconv"
	"strings"
	"time"
)

// CardFields is the raw card input collected from the buyer. It is tokenized
// directly against the gateway and never sent to Kore Core.
type CardFields struct {
	Number     string `json:"number"`
	CVC        string `json:"cvc"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	HolderName string `json:"holder_name"`
}

// Validate performs the local checks that gate network tokenization: number
// length and checksum, expiry not in the past, CVC length, holder name length.
// It returns a FlowError with code VALIDATION_ERROR listing every problem found.
func (c CardFields) Validate() error {
	return c.validateAt(time.Now())
}

func (c CardFields) validateAt(now time.Time) error {
	var problems []string

	number := strings.ReplaceAll(c.Number, " ", "")
	if len(number) < 13 || len(number) > 19 || !digitsOnly(number) {
		problems = append(problems, "card number must be 13 to 19 digits")
	} else if !luhnValid(number) {
		problems = append(problems, "card number is not valid")
	}

	if len(c.CVC) < 3 || len(c.CVC) > 4 || !digitsOnly(c.CVC) {
		problems = append(problems, "cvc must be 3 or 4 digits")
	}

	if expired, ok := expiryInPast(c.ExpMonth, c.ExpYear, now); !ok {
		problems = append(problems, "expiry date is malformed")
	} else if expired {
		problems = append(problems, "card is expired")
	}

	holder := strings.TrimSpace(c.HolderName)
	if len(holder) < 5 || len(holder) > 64 {
		problems = append(problems, "holder name must be 5 to 64 characters")
	}

	if len(problems) > 0 {
		return NewFlowError(ErrValidation, strings.Join(problems, "; "), CodeValidation)
	}
	return nil
}

// expiryInPast parses MM / YY or YYYY and compares against the end of the
// expiry month. ok is false when the fields are not parseable.
func expiryInPast(month, year string, now time.Time) (expired, ok bool) {
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		return false, false
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return false, false
	}
	if y < 100 {
		y += 2000
	}
	// Cards remain valid through the last day of the expiry month.
	endOfMonth := time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return !now.Before(endOfMonth), true
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
