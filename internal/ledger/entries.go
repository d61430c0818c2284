package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostEntry persists a new entry and applies its signed amount to the
// referenced account in the same transaction.
func (s *Service) PostEntry(ctx context.Context, actor Actor, in EntryInput) (Entry, error) {
	const op = "entry.create"
	if err := checkActor(op, actor); err != nil {
		return Entry{}, err
	}
	if err := validateStruct(in); err != nil {
		return Entry{}, withOp(op, err)
	}
	candidate := Entry{
		CompanyID:          actor.CompanyID,
		Description:        strings.TrimSpace(in.Description),
		Amount:             in.Amount,
		Type:               in.Type,
		CategoryID:         in.CategoryID,
		AccountID:          in.AccountID,
		Date:               in.Date,
		Notes:              strings.TrimSpace(in.Notes),
		Tags:               normaliseTags(in.Tags),
		IsRecurring:        in.IsRecurring,
		RecurringFrequency: in.RecurringFrequency,
		RecurringEndDate:   in.RecurringEndDate,
		CreatedBy:          actor.UserID,
	}
	if !candidate.IsRecurring {
		candidate.RecurringFrequency = ""
		candidate.RecurringEndDate = nil
	}
	if err := validateEntry(candidate); err != nil {
		return Entry{}, withOp(op, err)
	}

	var out Entry
	err := s.mutate(ctx, op, func(ctx context.Context, tx TxRepository) error {
		acc, err := loadAccount(ctx, tx, candidate.AccountID, "account_id")
		if err != nil {
			return err
		}
		if err := checkAccount(acc, actor.CompanyID, "account_id"); err != nil {
			return err
		}
		cat, err := loadCategory(ctx, tx, candidate.CategoryID)
		if err != nil {
			return err
		}
		if err := checkCategory(cat, actor.CompanyID, candidate.Type); err != nil {
			return err
		}
		entry := candidate
		entry.ID = s.newID()
		entry.CreatedAt = s.now()
		entry.UpdatedAt = entry.CreatedAt
		inserted, err := tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		if _, err := s.post(ctx, tx, acc, inserted.SignedAmount(), PostingApply, &inserted.ID, actor); err != nil {
			return err
		}
		out = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.after(ctx, actor, op, "entry", out.ID, map[string]any{
		"type":       string(out.Type),
		"amount":     out.Amount.StringFixed(2),
		"account_id": out.AccountID.String(),
	})
	return out, nil
}

// UpdateEntry changes an entry and moves its effect on account balances. When
// the account stays the same a single net delta is applied; when it changes
// the old account is reversed and the new one credited or debited.
func (s *Service) UpdateEntry(ctx context.Context, actor Actor, id uuid.UUID, patch EntryPatch) (Entry, error) {
	const op = "entry.update"
	if err := checkActor(op, actor); err != nil {
		return Entry{}, err
	}

	var (
		out    Entry
		before Entry
	)
	err := s.mutate(ctx, op, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			if KindOf(classify(op, err)) == KindNotFound {
				return notFound("entry")
			}
			return err
		}
		if cur.CompanyID != actor.CompanyID {
			return notFound("entry")
		}
		next := patch.Apply(cur)
		next.Description = strings.TrimSpace(next.Description)
		next.Notes = strings.TrimSpace(next.Notes)
		next.Tags = normaliseTags(next.Tags)
		next.UpdatedAt = s.now()
		if err := validateEntry(next); err != nil {
			return err
		}
		if next.CategoryID != cur.CategoryID || next.Type != cur.Type {
			cat, err := loadCategory(ctx, tx, next.CategoryID)
			if err != nil {
				return err
			}
			if err := checkCategory(cat, actor.CompanyID, next.Type); err != nil {
				return err
			}
		}

		oldSigned := cur.SignedAmount()
		newSigned := next.SignedAmount()
		if next.AccountID == cur.AccountID {
			delta := newSigned.Sub(oldSigned)
			if !delta.IsZero() {
				acc, err := loadAccount(ctx, tx, cur.AccountID, "account_id")
				if err != nil {
					return err
				}
				if err := checkAccount(acc, actor.CompanyID, "account_id"); err != nil {
					return err
				}
				if _, err := s.post(ctx, tx, acc, delta, PostingAdjust, &cur.ID, actor); err != nil {
					return err
				}
			}
		} else {
			oldAcc, err := loadAccount(ctx, tx, cur.AccountID, "account_id")
			if err != nil {
				return err
			}
			newAcc, err := loadAccount(ctx, tx, next.AccountID, "account_id")
			if err != nil {
				return err
			}
			if err := checkAccount(newAcc, actor.CompanyID, "account_id"); err != nil {
				return err
			}
			first, second := accountOrder(oldAcc, newAcc)
			for _, acc := range []Account{first, second} {
				if acc.ID == oldAcc.ID {
					_, err = s.post(ctx, tx, acc, oldSigned.Neg(), PostingReverse, &cur.ID, actor)
				} else {
					_, err = s.post(ctx, tx, acc, newSigned, PostingApply, &cur.ID, actor)
				}
				if err != nil {
					return err
				}
			}
		}

		updated, err := tx.UpdateEntry(ctx, next)
		if err != nil {
			return err
		}
		before = cur
		out = updated
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.after(ctx, actor, op, "entry", out.ID, map[string]any{
		"before_amount":     before.Amount.StringFixed(2),
		"before_type":       string(before.Type),
		"before_account_id": before.AccountID.String(),
		"amount":            out.Amount.StringFixed(2),
		"type":              string(out.Type),
		"account_id":        out.AccountID.String(),
	})
	return out, nil
}

// DeleteEntry removes an entry and reverses its effect on the account. A
// second delete of the same entry is ErrNotFound and changes nothing.
func (s *Service) DeleteEntry(ctx context.Context, actor Actor, id uuid.UUID) error {
	const op = "entry.delete"
	if err := checkActor(op, actor); err != nil {
		return err
	}
	var removed Entry
	err := s.mutate(ctx, op, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			if KindOf(classify(op, err)) == KindNotFound {
				return notFound("entry")
			}
			return err
		}
		if cur.CompanyID != actor.CompanyID {
			return notFound("entry")
		}
		if err := tx.DeleteEntry(ctx, cur.ID); err != nil {
			return err
		}
		acc, err := tx.GetAccount(ctx, cur.AccountID)
		if err != nil {
			return err
		}
		if _, err := s.post(ctx, tx, acc, cur.SignedAmount().Neg(), PostingReverse, &cur.ID, actor); err != nil {
			return err
		}
		removed = cur
		return nil
	})
	if err != nil {
		return err
	}
	s.after(ctx, actor, op, "entry", removed.ID, map[string]any{
		"type":       string(removed.Type),
		"amount":     removed.Amount.StringFixed(2),
		"account_id": removed.AccountID.String(),
	})
	return nil
}

// DuplicateEntry posts a copy of an existing entry on date, or today when
// date is zero.
func (s *Service) DuplicateEntry(ctx context.Context, actor Actor, id uuid.UUID, date time.Time) (Entry, error) {
	src, err := s.GetEntry(ctx, actor, id)
	if err != nil {
		return Entry{}, err
	}
	if date.IsZero() {
		y, m, d := s.now().Date()
		date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return s.PostEntry(ctx, actor, EntryInput{
		Description:        src.Description,
		Amount:             src.Amount,
		Type:               src.Type,
		CategoryID:         src.CategoryID,
		AccountID:          src.AccountID,
		Date:               date,
		Notes:              src.Notes,
		Tags:               src.Tags,
		IsRecurring:        src.IsRecurring,
		RecurringFrequency: src.RecurringFrequency,
		RecurringEndDate:   src.RecurringEndDate,
	})
}

// GetEntry returns an entry of the actor's company.
func (s *Service) GetEntry(ctx context.Context, actor Actor, id uuid.UUID) (EntryView, error) {
	const op = "entry.get"
	view, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		if KindOf(classify(op, err)) == KindNotFound {
			return EntryView{}, withOp(op, notFound("entry"))
		}
		return EntryView{}, classify(op, err)
	}
	if view.CompanyID != actor.CompanyID {
		return EntryView{}, withOp(op, notFound("entry"))
	}
	return view, nil
}

// ListEntries returns the actor's entries matching filter, newest first.
func (s *Service) ListEntries(ctx context.Context, actor Actor, filter EntryFilter) ([]EntryView, error) {
	const op = "entry.list"
	if err := checkActor(op, actor); err != nil {
		return nil, err
	}
	filter.CompanyID = actor.CompanyID
	entries, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, classify(op, err)
	}
	return entries, nil
}

// ListRecurring returns the actor's recurring entries.
func (s *Service) ListRecurring(ctx context.Context, actor Actor) ([]EntryView, error) {
	return s.ListEntries(ctx, actor, EntryFilter{RecurringOnly: true})
}
