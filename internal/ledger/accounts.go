package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateAccount opens an account. A non-zero opening balance is recorded as
// an opening posting so the balance always equals the sum of postings.
func (s *Service) CreateAccount(ctx context.Context, actor Actor, in AccountInput) (Account, error) {
	const op = "account.create"
	if err := checkActor(op, actor); err != nil {
		return Account{}, err
	}
	if err := validateStruct(in); err != nil {
		return Account{}, withOp(op, err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Account{}, withOp(op, invalid("name", "is required"))
	}
	if !in.Type.Valid() {
		return Account{}, withOp(op, invalid("type", "unknown account type"))
	}
	if !in.OpeningBalance.Equal(in.OpeningBalance.Truncate(maxScale)) {
		return Account{}, withOp(op, invalid("opening_balance", "must have at most two decimal places"))
	}

	var out Account
	err := s.mutate(ctx, op, func(ctx context.Context, tx TxRepository) error {
		now := s.now()
		inserted, err := tx.InsertAccount(ctx, Account{
			ID:          s.newID(),
			CompanyID:   actor.CompanyID,
			Name:        name,
			Type:        in.Type,
			Description: strings.TrimSpace(in.Description),
			Balance:     decimal.Zero,
			Currency:    normaliseCurrency(in.Currency),
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		opened, err := s.post(ctx, tx, inserted, in.OpeningBalance, PostingOpening, nil, actor)
		if err != nil {
			return err
		}
		out = opened
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.after(ctx, actor, op, "account", out.ID, map[string]any{
		"name":            out.Name,
		"type":            string(out.Type),
		"opening_balance": in.OpeningBalance.StringFixed(2),
	})
	return out, nil
}

// GetAccount returns an account of the actor's company.
func (s *Service) GetAccount(ctx context.Context, actor Actor, id uuid.UUID) (Account, error) {
	const op = "account.get"
	acc, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		if KindOf(classify(op, err)) == KindNotFound {
			return Account{}, withOp(op, notFound("account"))
		}
		return Account{}, classify(op, err)
	}
	if acc.CompanyID != actor.CompanyID {
		return Account{}, withOp(op, notFound("account"))
	}
	return acc, nil
}

// ListAccounts returns the actor's accounts ordered by name. Only active
// accounts are included unless the filter asks otherwise.
func (s *Service) ListAccounts(ctx context.Context, actor Actor, filter AccountFilter) ([]Account, error) {
	const op = "account.list"
	if err := checkActor(op, actor); err != nil {
		return nil, err
	}
	company := actor.CompanyID
	filter.CompanyID = &company
	accounts, err := s.repo.ListAccounts(ctx, filter)
	if err != nil {
		return nil, classify(op, err)
	}
	return accounts, nil
}

// UpdateAccount changes account metadata. Balances only move through postings.
func (s *Service) UpdateAccount(ctx context.Context, actor Actor, id uuid.UUID, patch AccountPatch) (Account, error) {
	const op = "account.update"
	if err := checkActor(op, actor); err != nil {
		return Account{}, err
	}
	if err := validateStruct(patch); err != nil {
		return Account{}, withOp(op, err)
	}
	var out Account
	err := s.mutate(ctx, op, func(ctx context.Context, tx TxRepository) error {
		acc, err := s.ownedAccount(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			acc.Name = strings.TrimSpace(*patch.Name)
			if acc.Name == "" {
				return invalid("name", "is required")
			}
		}
		if patch.Type != nil {
			if !patch.Type.Valid() {
				return invalid("type", "unknown account type")
			}
			acc.Type = *patch.Type
		}
		if patch.Description != nil {
			acc.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Currency != nil {
			acc.Currency = normaliseCurrency(*patch.Currency)
		}
		acc.UpdatedAt = s.now()
		updated, err := tx.UpdateAccount(ctx, acc)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.after(ctx, actor, op, "account", out.ID, map[string]any{"name": out.Name, "type": string(out.Type)})
	return out, nil
}

// DeactivateAccount soft-deletes an account. Its postings and entries stay.
func (s *Service) DeactivateAccount(ctx context.Context, actor Actor, id uuid.UUID) error {
	const op = "account.deactivate"
	if err := checkActor(op, actor); err != nil {
		return err
	}
	changed := false
	err := s.mutate(ctx, op, func(ctx context.Context, tx TxRepository) error {
		acc, err := s.ownedAccount(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !acc.IsActive {
			changed = false
			return nil
		}
		acc.IsActive = false
		acc.UpdatedAt = s.now()
		if _, err := tx.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.after(ctx, actor, op, "account", id, nil)
	}
	return nil
}

// Transfer moves amount between two active accounts of the actor's company
// as one transaction of two postings.
func (s *Service) Transfer(ctx context.Context, actor Actor, in TransferInput) (Transfer, error) {
	const op = "account.transfer"
	if err := checkActor(op, actor); err != nil {
		return Transfer{}, err
	}
	if err := validateStruct(in); err != nil {
		return Transfer{}, withOp(op, err)
	}
	if err := validateAmount("amount", in.Amount); err != nil {
		return Transfer{}, withOp(op, err)
	}
	if in.FromAccountID == in.ToAccountID {
		return Transfer{}, withOp(op, invalid("to_account_id", "must differ from the source account"))
	}

	var out Transfer
	err := s.mutate(ctx, op, func(ctx context.Context, tx TxRepository) error {
		from, err := loadAccount(ctx, tx, in.FromAccountID, "from_account_id")
		if err != nil {
			return err
		}
		if err := checkAccount(from, actor.CompanyID, "from_account_id"); err != nil {
			return err
		}
		to, err := loadAccount(ctx, tx, in.ToAccountID, "to_account_id")
		if err != nil {
			return err
		}
		if err := checkAccount(to, actor.CompanyID, "to_account_id"); err != nil {
			return err
		}
		if from.Currency != to.Currency {
			return invalid("to_account_id", "accounts use different currencies")
		}
		if from.Balance.LessThan(in.Amount) {
			return invalid("amount", "insufficient balance")
		}
		first, second := accountOrder(from, to)
		result := map[uuid.UUID]Account{}
		for _, acc := range []Account{first, second} {
			delta := in.Amount
			if acc.ID == from.ID {
				delta = delta.Neg()
			}
			updated, err := s.post(ctx, tx, acc, delta, PostingTransfer, nil, actor)
			if err != nil {
				return err
			}
			result[acc.ID] = updated
		}
		out = Transfer{From: result[from.ID], To: result[to.ID]}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.after(ctx, actor, op, "account", out.From.ID, map[string]any{
		"to_account_id": out.To.ID.String(),
		"amount":        in.Amount.StringFixed(2),
		"description":   in.Description,
	})
	return out, nil
}

// Reconcile compares an account's stored balance with the sum of its postings
// within one snapshot.
func (s *Service) Reconcile(ctx context.Context, actor Actor, id uuid.UUID) (Reconciliation, error) {
	const op = "account.reconcile"
	var out Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := s.ownedAccount(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		out, err = s.reconcile(ctx, tx, acc)
		return err
	})
	if err != nil {
		return Reconciliation{}, classify(op, err)
	}
	return out, nil
}

// ReconcileAll checks every account of every company. It is meant for
// maintenance jobs, not request handlers.
func (s *Service) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	const op = "account.reconcile_all"
	accounts, err := s.repo.ListAccounts(ctx, AccountFilter{IncludeInactive: true})
	if err != nil {
		return nil, classify(op, err)
	}
	results := make([]Reconciliation, 0, len(accounts))
	for _, listed := range accounts {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		var rec Reconciliation
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			acc, err := tx.GetAccount(ctx, listed.ID)
			if err != nil {
				return err
			}
			rec, err = s.reconcile(ctx, tx, acc)
			return err
		})
		if err != nil {
			return results, classify(op, err)
		}
		results = append(results, rec)
	}
	return results, nil
}

func (s *Service) reconcile(ctx context.Context, tx TxRepository, acc Account) (Reconciliation, error) {
	total, err := tx.SumPostings(ctx, acc.ID)
	if err != nil {
		return Reconciliation{}, err
	}
	drift := acc.Balance.Sub(total)
	return Reconciliation{
		AccountID:     acc.ID,
		CompanyID:     acc.CompanyID,
		Balance:       acc.Balance,
		PostingsTotal: total,
		Drift:         drift,
		Balanced:      drift.IsZero(),
		CheckedAt:     s.now(),
	}, nil
}

// ListPostings returns the latest postings of an account of the actor's company.
func (s *Service) ListPostings(ctx context.Context, actor Actor, accountID uuid.UUID, limit int) ([]Posting, error) {
	const op = "account.postings"
	if _, err := s.GetAccount(ctx, actor, accountID); err != nil {
		return nil, err
	}
	postings, err := s.repo.ListPostings(ctx, accountID, limit)
	if err != nil {
		return nil, classify(op, err)
	}
	return postings, nil
}

// AccountStats summarises the actor's active accounts.
func (s *Service) AccountStats(ctx context.Context, actor Actor) (AccountStats, error) {
	accounts, err := s.ListAccounts(ctx, actor, AccountFilter{})
	if err != nil {
		return AccountStats{}, err
	}
	return ComputeAccountStats(accounts), nil
}

func (s *Service) ownedAccount(ctx context.Context, tx TxRepository, actor Actor, id uuid.UUID) (Account, error) {
	acc, err := tx.GetAccount(ctx, id)
	if err != nil {
		if KindOf(classify("", err)) == KindNotFound {
			return Account{}, notFound("account")
		}
		return Account{}, err
	}
	if acc.CompanyID != actor.CompanyID {
		return Account{}, notFound("account")
	}
	return acc, nil
}
