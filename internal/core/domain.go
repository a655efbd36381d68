package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusGranted ConsentStatus = "GRANTED"

	AccountSavings    AccountType = "Savings"
	AccountCreditCard AccountType = "Credit Card"

	CategoryFood      Category = "Food"
	CategoryTransport Category = "Transport"
	CategoryShopping  Category = "Shopping"
	CategoryBills     Category = "Bills"
	CategoryTransfer  Category = "Transfer"
	CategoryUPI       Category = "UPI"
	CategoryOther     Category = "Other"

	UPIGPay    UPIApp = "GPay"
	UPIPhonePe UPIApp = "PhonePe"
	UPIPaytm   UPIApp = "Paytm"
	UPIBHIM    UPIApp = "BHIM"
)

type (
	// ConsentStatus is the backend-reported state of a consent. Values other
	// than GRANTED are kept as received.
	ConsentStatus string

	AccountType string
	Category    string
	UPIApp      string

	// Consent is one granted data-sharing authorization. Mock is carried
	// next to the handle and never inferred from the handle text.
	Consent struct {
		Handle    string        `json:"consentHandle"`
		Status    ConsentStatus `json:"status"`
		Mock      bool          `json:"mock"`
		UserID    string        `json:"userId,omitempty"`
		GrantedAt time.Time     `json:"grantedAt"`
	}

	Account struct {
		ID           string          `json:"id"`
		Bank         string          `json:"bank"`
		AccountType  AccountType     `json:"accountType"`
		MaskedNumber string          `json:"maskedNumber"`
		Balance      decimal.Decimal `json:"balance"`
		Currency     string          `json:"currency"`
		LastUpdated  time.Time       `json:"lastUpdated"`
	}

	Transaction struct {
		ID          string           `json:"id"`
		AccountID   string           `json:"accountId"`
		Date        time.Time        `json:"date"`
		Description string           `json:"description"`
		Amount      decimal.Decimal  `json:"amount"`
		Category    Category         `json:"category"`
		UPIApp      *UPIApp          `json:"upiApp"`
		Balance     *decimal.Decimal `json:"balance,omitempty"`
	}
)

// Categories lists every transaction category in display order.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryShopping,
	CategoryBills,
	CategoryTransfer,
	CategoryUPI,
	CategoryOther,
}

// UPIApps lists the payment applications a UPI transaction may originate from.
var UPIApps = []UPIApp{UPIGPay, UPIPhonePe, UPIPaytm, UPIBHIM}

var ErrDuplicateAccountID = errors.New("duplicate account id")

func (s ConsentStatus) String() string { return string(s) }

// IsGranted reports whether the consent can be used to fetch data.
func (c Consent) IsGranted() bool {
	return c.Handle != "" && c.Status == StatusGranted
}

func (c Category) IsValid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// ParseCategory matches a category name case-insensitively.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, v := range Categories {
		if strings.EqualFold(string(v), s) {
			return v, true
		}
	}
	return "", false
}

func (a UPIApp) IsValid() bool {
	for _, v := range UPIApps {
		if v == a {
			return true
		}
	}
	return false
}

// IsDebit reports whether the transaction takes money out of the account.
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// UPIAppName returns the app tag or "" when the transaction has none.
func (t Transaction) UPIAppName() string {
	if t.UPIApp == nil {
		return ""
	}
	return string(*t.UPIApp)
}

// ValidateAccounts checks that account identifiers are unique within one result.
func ValidateAccounts(accounts []Account) error {
	seen := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		if _, ok := seen[a.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAccountID, a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// SortByDateDesc orders transactions newest first. Equal dates keep their
// relative order.
func SortByDateDesc(txns []Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.After(txns[j].Date)
	})
}

// IsSortedByDateDesc reports whether date[i-1] >= date[i] for every adjacent pair.
func IsSortedByDateDesc(txns []Transaction) bool {
	for i := 1; i < len(txns); i++ {
		if txns[i].Date.After(txns[i-1].Date) {
			return false
		}
	}
	return true
}
