package core

import "strings"

type (
	AccountInput struct {
		Name        string   `json:"name"`
		Balance     float64  `json:"balance"`
		Currency    Currency `json:"currency"`
		Description string   `json:"description"`
	}

	// AccountPatch carries the fields of an account update; nil fields are left untouched.
	AccountPatch struct {
		Name        *string   `json:"name"`
		Balance     *float64  `json:"balance"`
		Currency    *Currency `json:"currency"`
		Description *string   `json:"description"`
	}

	TransactionInput struct {
		Kind        Kind     `json:"kind"`
		Amount      float64  `json:"amount"`
		Currency    Currency `json:"currency"`
		Date        Date     `json:"date"`
		Category    string   `json:"category"`
		Description string   `json:"description"`
		AccountID   string   `json:"accountId"`
	}

	// TransactionPatch carries the fields of a transaction update; nil fields keep
	// their current value. The kind is not patchable.
	TransactionPatch struct {
		Amount      *float64  `json:"amount"`
		Currency    *Currency `json:"currency"`
		Date        *Date     `json:"date"`
		Category    *string   `json:"category"`
		Description *string   `json:"description"`
		AccountID   *string   `json:"accountId"`
	}
)

func (in AccountInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if err := in.Currency.Validate(); err != nil {
		return invalid("currency", err)
	}
	return nil
}

func (p AccountPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if p.Currency != nil {
		if err := p.Currency.Validate(); err != nil {
			return invalid("currency", err)
		}
	}
	return nil
}

func (in TransactionInput) Validate() error {
	if err := in.Kind.Validate(); err != nil {
		return invalid("kind", err)
	}
	if !(in.Amount > 0) {
		return invalid("amount", ErrInvalidAmount)
	}
	if err := in.Currency.Validate(); err != nil {
		return invalid("currency", err)
	}
	if err := in.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if strings.TrimSpace(in.Category) == "" {
		return invalid("category", ErrEmptyCategory)
	}
	return nil
}

// Apply overlays the set fields of p onto in.
func (p TransactionPatch) Apply(in TransactionInput) TransactionInput {
	if p.Amount != nil {
		in.Amount = *p.Amount
	}
	if p.Currency != nil {
		in.Currency = *p.Currency
	}
	if p.Date != nil {
		in.Date = *p.Date
	}
	if p.Category != nil {
		in.Category = *p.Category
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.AccountID != nil {
		in.AccountID = *p.AccountID
	}
	return in
}

// Input returns the fields of t as an input, the base a patch is applied to.
func (t Transaction) Input() TransactionInput {
	return TransactionInput{
		Kind:        t.Kind,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Date:        t.Date,
		Category:    t.Category,
		Description: t.Description,
		AccountID:   t.AccountID,
	}
}
