package payment

import (
	"errors"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/promo-storefront/internal/common"
)

func init() {
	v := common.Validator()
	_ = v.RegisterValidation("card_number", func(fl validator.FieldLevel) bool {
		n := len(Digits(fl.Field().String()))
		return n >= 13 && n <= 19 && onlySeparators(fl.Field().String())
	})
	_ = v.RegisterValidation("cvv", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return len(s) >= 3 && len(s) <= 4 && len(Digits(s)) == len(s)
	})
}

// Card is the card data submitted with a checkout. It is forwarded to the
// gateway and never persisted or logged.
type Card struct {
	Number   string `json:"card_number" validate:"required,card_number"`
	ExpMonth int    `json:"exp_month" validate:"min=1,max=12"`
	ExpYear  int    `json:"exp_year" validate:"required"`
	CVV      string `json:"cvv" validate:"required,cvv"`
}

// Validate checks the card fields against now: 13 to 19 digits once spaces
// and dashes are removed, month in 1..12, year not before the current year,
// and a 3 or 4 digit CVV.
func (c Card) Validate(now time.Time) error {
	err := common.ValidateStruct(c)
	var fields []common.FieldError
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		if f, ok := appErr.Details.([]common.FieldError); ok {
			fields = f
		}
	} else if err != nil {
		return err
	}
	if c.ExpYear != 0 && c.ExpYear < now.Year() {
		fields = append(fields, common.FieldError{Field: "exp_year", Rule: "min"})
	}
	if len(fields) == 0 {
		return nil
	}
	return common.Validation("invalid payment details", prefixed("payment.", fields))
}

// Masked returns the last four digits for display.
func (c Card) Masked() string {
	d := Digits(c.Number)
	if len(d) < 4 {
		return "****"
	}
	return "****" + d[len(d)-4:]
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func onlySeparators(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != ' ' && r != '-' {
			return false
		}
	}
	return true
}

func prefixed(prefix string, fields []common.FieldError) []common.FieldError {
	out := make([]common.FieldError, len(fields))
	for i, f := range fields {
		out[i] = common.FieldError{Field: prefix + f.Field, Rule: f.Rule}
	}
	return out
}

func monthString(m int) string {
	if m < 10 {
		return "0" + strconv.Itoa(m)
	}
	return strconv.Itoa(m)
}
