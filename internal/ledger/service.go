package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/conectell/livrocaixa/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached aggregates after a committed mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Options tunes a Service. Zero values pick sane defaults.
type Options struct {
	Retry       RetryPolicy
	Metrics     *Metrics
	Invalidator Invalidator
	Logger      *slog.Logger
}

// Service coordinates entry posting, editing, deletion and account upkeep.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   Invalidator
	metrics *Metrics
	retry   RetryPolicy
	logger  *slog.Logger
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, opts Options) *Service {
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		audit:   audit,
		cache:   opts.Invalidator,
		metrics: opts.Metrics,
		retry:   retry,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.New,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// mutate runs fn in one transaction, replaying it while it loses concurrency
// races and the retry budget allows.
func (s *Service) mutate(ctx context.Context, op string, fn func(context.Context, TxRepository) error) error {
	attempts, err := s.retry.do(ctx, func() error {
		return classify(op, s.repo.WithTx(ctx, fn))
	}, func(attempt int, err error) {
		s.metrics.retry(op)
		s.logger.Debug("ledger retry", slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
	})
	if err != nil && IsConflict(err) {
		err = &Error{Kind: KindConflict, Op: op, Msg: fmt.Sprintf("gave up after %d attempts", attempts), Err: err}
	}
	s.metrics.observe(op, err)
	return err
}

// post applies a signed delta to acc and appends the matching posting. It
// returns the account as stored after the update.
func (s *Service) post(ctx context.Context, tx TxRepository, acc Account, delta decimal.Decimal, kind PostingKind, entryID *uuid.UUID, actor Actor) (Account, error) {
	if delta.IsZero() {
		return acc, nil
	}
	updated, err := tx.ApplyDelta(ctx, acc.ID, acc.Version, delta)
	if err != nil {
		return Account{}, err
	}
	err = tx.InsertPosting(ctx, Posting{
		ID:           s.newID(),
		AccountID:    updated.ID,
		CompanyID:    updated.CompanyID,
		EntryID:      entryID,
		Kind:         kind,
		Amount:       delta,
		BalanceAfter: updated.Balance,
		VersionAfter: updated.Version,
		ActorID:      actor.UserID,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

// loadAccount reads a referenced account; a missing one is a bad reference.
func loadAccount(ctx context.Context, tx TxRepository, id uuid.UUID, field string) (Account, error) {
	acc, err := tx.GetAccount(ctx, id)
	if err != nil {
		if KindOf(classify("", err)) == KindNotFound {
			return Account{}, invalid(field, "account not found")
		}
		return Account{}, err
	}
	return acc, nil
}

func loadCategory(ctx context.Context, tx TxRepository, id uuid.UUID) (Category, error) {
	cat, err := tx.GetCategory(ctx, id)
	if err != nil {
		if KindOf(classify("", err)) == KindNotFound {
			return Category{}, invalid("category_id", "category not found")
		}
		return Category{}, err
	}
	return cat, nil
}

// accountOrder returns a and b sorted by id so concurrent two-account
// mutations always touch rows in the same order.
func accountOrder(a, b Account) (Account, Account) {
	if bytes.Compare(a.ID[:], b.ID[:]) <= 0 {
		return a, b
	}
	return b, a
}

func checkActor(op string, actor Actor) error {
	if actor.CompanyID == uuid.Nil {
		return &Error{Kind: KindValidation, Op: op, Field: "company_id", Msg: "actor has no company"}
	}
	return nil
}

func withOp(op string, err error) error {
	var le *Error
	if errors.As(err, &le) && le.Op == "" {
		cp := *le
		cp.Op = op
		return &cp
	}
	return err
}

// after records the audit trail and invalidates caches once a mutation has
// committed. Failures here never undo the mutation.
func (s *Service) after(ctx context.Context, actor Actor, action, entity string, id uuid.UUID, meta map[string]any) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:   actor.UserID,
			CompanyID: actor.CompanyID,
			Action:    action,
			Entity:    entity,
			EntityID:  id.String(),
			Meta:      meta,
			At:        s.now(),
		})
		if err != nil {
			s.logger.Warn("ledger audit", slog.String("action", action), slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("ledger cache bump", slog.Any("error", err))
		}
	}
}
