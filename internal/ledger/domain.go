// Package ledger keeps account balances consistent with the entries posted
// against them. Every balance change is an append-only posting written in the
// same transaction as the entry it belongs to, and the materialised balance is
// advanced with a compare-and-swap on the account version.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies a bank, cash or credit account.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCredit     AccountType = "credit"
	AccountInvestment AccountType = "investment"
	AccountCash       AccountType = "cash"
)

// AccountTypes lists every supported account type in display order.
var AccountTypes = []AccountType{AccountChecking, AccountSavings, AccountCredit, AccountInvestment, AccountCash}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	for _, known := range AccountTypes {
		if t == known {
			return true
		}
	}
	return false
}

// EntryType is the direction of an entry.
type EntryType string

const (
	EntryIncome  EntryType = "income"
	EntryExpense EntryType = "expense"
)

// Valid reports whether t is income or expense.
func (t EntryType) Valid() bool {
	return t == EntryIncome || t == EntryExpense
}

// Frequency of a recurring entry.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// DefaultCurrency is used when an account is created without one.
const DefaultCurrency = "BRL"

// Account is a ledger with a running balance.
type Account struct {
	ID          uuid.UUID       `json:"id"`
	CompanyID   uuid.UUID       `json:"company_id"`
	Name        string          `json:"name"`
	Type        AccountType     `json:"type"`
	Description string          `json:"description,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency"`
	IsActive    bool            `json:"is_active"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Category is the subset of a category the ledger needs to validate entries.
type Category struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Type      EntryType `json:"type"`
	IsActive  bool      `json:"is_active"`
}

// Entry is a single income or expense record. Amount is always positive; the
// sign comes from Type.
type Entry struct {
	ID                 uuid.UUID       `json:"id"`
	CompanyID          uuid.UUID       `json:"company_id"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	Type               EntryType       `json:"type"`
	CategoryID         uuid.UUID       `json:"category_id"`
	AccountID          uuid.UUID       `json:"account_id"`
	Date               time.Time       `json:"date"`
	Notes              string          `json:"notes,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	IsRecurring        bool            `json:"is_recurring"`
	RecurringFrequency Frequency       `json:"recurring_frequency,omitempty"`
	RecurringEndDate   *time.Time      `json:"recurring_end_date,omitempty"`
	CreatedBy          uuid.UUID       `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// SignedAmount is the amount with the sign implied by the entry type.
func (e Entry) SignedAmount() decimal.Decimal {
	return Signed(e.Type, e.Amount)
}

// Signed applies the sign of typ to amount.
func Signed(typ EntryType, amount decimal.Decimal) decimal.Decimal {
	if typ == EntryExpense {
		return amount.Neg()
	}
	return amount
}

// AccountRef summarises the account an entry is posted to.
type AccountRef struct {
	ID   uuid.UUID   `json:"id"`
	Name string      `json:"name"`
	Type AccountType `json:"type"`
}

// CategoryRef summarises the category of an entry.
type CategoryRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color,omitempty"`
	Icon  string    `json:"icon,omitempty"`
}

// EntryView is an entry joined with its category and account summaries.
type EntryView struct {
	Entry
	Category CategoryRef `json:"category"`
	Account  AccountRef  `json:"account"`
}

// PostingKind records why a posting was written.
type PostingKind string

const (
	PostingOpening  PostingKind = "opening"
	PostingApply    PostingKind = "apply"
	PostingAdjust   PostingKind = "adjust"
	PostingReverse  PostingKind = "reverse"
	PostingTransfer PostingKind = "transfer"
)

// Posting is an immutable signed change to an account balance.
type Posting struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	CompanyID    uuid.UUID       `json:"company_id"`
	EntryID      *uuid.UUID      `json:"entry_id,omitempty"`
	Kind         PostingKind     `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	VersionAfter int64           `json:"version_after"`
	ActorID      uuid.UUID       `json:"actor_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Actor identifies who performs an operation and the company it is scoped to.
type Actor struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
}

// EntryInput carries the fields of a new entry.
type EntryInput struct {
	Description        string          `json:"description" validate:"required,max=255"`
	Amount             decimal.Decimal `json:"amount"`
	Type               EntryType       `json:"type" validate:"required,oneof=income expense"`
	CategoryID         uuid.UUID       `json:"category_id" validate:"required"`
	AccountID          uuid.UUID       `json:"account_id" validate:"required"`
	Date               time.Time       `json:"date" validate:"required"`
	Notes              string          `json:"notes" validate:"max=2000"`
	Tags               []string        `json:"tags" validate:"max=20,dive,max=40"`
	IsRecurring        bool            `json:"is_recurring"`
	RecurringFrequency Frequency       `json:"recurring_frequency"`
	RecurringEndDate   *time.Time      `json:"recurring_end_date"`
}

// EntryPatch carries the fields to change on an entry; nil fields are kept.
type EntryPatch struct {
	Description        *string          `json:"description"`
	Amount             *decimal.Decimal `json:"amount"`
	Type               *EntryType       `json:"type"`
	CategoryID         *uuid.UUID       `json:"category_id"`
	AccountID          *uuid.UUID       `json:"account_id"`
	Date               *time.Time       `json:"date"`
	Notes              *string          `json:"notes"`
	Tags               *[]string        `json:"tags"`
	IsRecurring        *bool            `json:"is_recurring"`
	RecurringFrequency *Frequency       `json:"recurring_frequency"`
	RecurringEndDate   *time.Time       `json:"recurring_end_date"`
}

// Apply returns a copy of e with the patch applied.
func (p EntryPatch) Apply(e Entry) Entry {
	next := e
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Amount != nil {
		next.Amount = *p.Amount
	}
	if p.Type != nil {
		next.Type = *p.Type
	}
	if p.CategoryID != nil {
		next.CategoryID = *p.CategoryID
	}
	if p.AccountID != nil {
		next.AccountID = *p.AccountID
	}
	if p.Date != nil {
		next.Date = *p.Date
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	if p.Tags != nil {
		next.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.IsRecurring != nil {
		next.IsRecurring = *p.IsRecurring
	}
	if p.RecurringFrequency != nil {
		next.RecurringFrequency = *p.RecurringFrequency
	}
	if p.RecurringEndDate != nil {
		end := *p.RecurringEndDate
		next.RecurringEndDate = &end
	}
	if !next.IsRecurring {
		next.RecurringFrequency = ""
		next.RecurringEndDate = nil
	}
	return next
}

// AccountInput carries the fields of a new account.
type AccountInput struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Type           AccountType     `json:"type" validate:"required"`
	Description    string          `json:"description" validate:"max=500"`
	Currency       string          `json:"currency" validate:"omitempty,len=3,alpha"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// AccountPatch changes account metadata. The balance is never writable.
type AccountPatch struct {
	Name        *string      `json:"name" validate:"omitempty,max=120"`
	Type        *AccountType `json:"type"`
	Description *string      `json:"description" validate:"omitempty,max=500"`
	Currency    *string      `json:"currency" validate:"omitempty,len=3,alpha"`
}

// TransferInput moves money between two accounts of the same company.
type TransferInput struct {
	FromAccountID uuid.UUID       `json:"from_account_id" validate:"required"`
	ToAccountID   uuid.UUID       `json:"to_account_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=255"`
}

// Transfer is the outcome of a transfer.
type Transfer struct {
	From Account `json:"from"`
	To   Account `json:"to"`
}

// Reconciliation compares an account's stored balance with its postings.
type Reconciliation struct {
	AccountID     uuid.UUID       `json:"account_id"`
	CompanyID     uuid.UUID       `json:"company_id"`
	Balance       decimal.Decimal `json:"balance"`
	PostingsTotal decimal.Decimal `json:"postings_total"`
	Drift         decimal.Decimal `json:"drift"`
	Balanced      bool            `json:"balanced"`
	CheckedAt     time.Time       `json:"checked_at"`
}
