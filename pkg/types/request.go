package types

import (
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// QuoteRequest asks every provider for a price to move Amount of FromToken
// into ToToken. Amount is a base-10 integer in the source token's smallest unit.
type QuoteRequest struct {
	FromToken Token  `json:"fromToken"`
	ToToken   Token  `json:"toToken"`
	Amount    string `json:"amount" validate:"required,number"`
}

// AmountInt parses Amount
func (r QuoteRequest) AmountInt() (*big.Int, error) {
	return ParseAmount(r.Amount)
}

// IsZero reports whether the request carries no positive amount
func (r *QuoteRequest) IsZero() bool {
	if r == nil {
		return true
	}
	amount, err := r.AmountInt()
	return err != nil || amount.Sign() <= 0
}

// Key identifies the logical request: both tokens and the amount
func (r *QuoteRequest) Key() string {
	if r == nil {
		return ""
	}
	amount := r.Amount
	if v, err := r.AmountInt(); err == nil {
		amount = v.String()
	}
	return strings.ToLower(strings.Join([]string{
		r.FromToken.Chain, r.FromToken.ContractAddress().Hex(),
		r.ToToken.Chain, r.ToToken.ContractAddress().Hex(),
		amount,
	}, "|"))
}

// ValidateRequest checks struct tags and that the amount is positive
func ValidateRequest(r *QuoteRequest) error {
	if r == nil {
		return errors.New("quote request is nil")
	}
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(err, "invalid quote request")
	}
	amount, err := r.AmountInt()
	if err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return errors.Wrapf(ErrInvalidAmount, "amount must be positive, got %s", r.Amount)
	}
	return nil
}
