package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	COP Currency = "COP"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

const (
	Expense Kind = "expense"
	Income  Kind = "income"
)

const dateLayout = "2006-01-02"

type (
	Currency string

	// Kind tells whether a transaction takes money out of (expense) or puts
	// money into (income) its linked account.
	Kind string

	// Date is a calendar date. It is always stored at midnight UTC so that
	// month and day extraction never shifts across time zones.
	Date struct {
		time.Time
	}

	Account struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Balance     float64   `json:"balance"`
		Currency    Currency  `json:"currency"`
		Description string    `json:"description,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	Transaction struct {
		ID          string    `json:"id"`
		Kind        Kind      `json:"kind"`
		Amount      float64   `json:"amount"`
		Currency    Currency  `json:"currency"`
		Date        Date      `json:"date"`
		Category    string    `json:"category"`
		Description string    `json:"description,omitempty"`
		AccountID   string    `json:"accountId,omitempty"` // empty when unlinked
		CreatedAt   time.Time `json:"createdAt"`
	}
)

var (
	ErrEmptyName           = errors.New("name cannot be empty")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrEmptyCategory       = errors.New("category cannot be empty")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidKind         = errors.New("invalid transaction kind")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidYear         = errors.New("invalid year")
)

// SupportedCurrencies lists the currency codes accounts and transactions may use.
func SupportedCurrencies() []Currency {
	return []Currency{COP, USD, EUR}
}

// ParseCurrency normalizes a user supplied code ("usd ", "Usd") and checks it is supported.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

func (c Currency) Validate() error {
	switch c {
	case COP, USD, EUR:
		return nil
	default:
		return ErrUnsupportedCurrency
	}
}

func (c Currency) String() string {
	return string(c)
}

func (k Kind) Validate() error {
	switch k {
	case Expense, Income:
		return nil
	default:
		return ErrInvalidKind
	}
}

// Sign is the direction a transaction of this kind moves its account balance.
func (k Kind) Sign() float64 {
	if k == Income {
		return 1
	}
	return -1
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// DateOf keeps the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// In reports whether the date falls inside the given calendar month.
func (d Date) In(year, month int) bool {
	return d.Year() == year && d.Month() == month
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidDate
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ValidateMonth checks a 1-12 month number.
func ValidateMonth(month int) error {
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// ValidateYear rejects years before 1; year 0 is never a calendar year.
func ValidateYear(year int) error {
	if year < 1 {
		return ErrInvalidYear
	}
	return nil
}
