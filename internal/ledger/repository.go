package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Reader
}

// Reader serves queries outside a write transaction.
type Reader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
	GetEntry(ctx context.Context, id uuid.UUID) (EntryView, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]EntryView, error)
	ListPostings(ctx context.Context, accountID uuid.UUID, limit int) ([]Posting, error)
}

// TxRepository exposes operations that run inside one transaction. Every
// method must see the same snapshot and commit or roll back together.
type TxRepository interface {
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	GetCategory(ctx context.Context, id uuid.UUID) (Category, error)
	InsertAccount(ctx context.Context, acc Account) (Account, error)
	// UpdateAccount writes metadata and the active flag; never the balance.
	UpdateAccount(ctx context.Context, acc Account) (Account, error)
	// ApplyDelta adds delta to the balance only if the account is still at
	// expectedVersion, bumping the version. A moved version is ErrConflict.
	ApplyDelta(ctx context.Context, accountID uuid.UUID, expectedVersion int64, delta decimal.Decimal) (Account, error)
	InsertPosting(ctx context.Context, p Posting) error
	SumPostings(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (Entry, error)
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	UpdateEntry(ctx context.Context, e Entry) (Entry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
}

// AccountFilter narrows account listings. A nil CompanyID spans every
// company and is reserved for maintenance jobs.
type AccountFilter struct {
	CompanyID       *uuid.UUID
	Type            *AccountType
	IncludeInactive bool
}

// EntryFilter narrows entry listings at the storage layer.
type EntryFilter struct {
	CompanyID     uuid.UUID
	Type          *EntryType
	CategoryID    *uuid.UUID
	AccountID     *uuid.UUID
	From          *time.Time
	To            *time.Time
	Search        string
	RecurringOnly bool
	Limit         int
}
