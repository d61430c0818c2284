package ledger

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxScale = 2

var (
	structValidator = newValidator()
	// maxAmount bounds amounts to what NUMERIC(18,2) stores.
	maxAmount = decimal.New(1, 16)
)

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateStruct(v any) error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invalid(fe.Field(), "failed "+fe.Tag())
	}
	return invalid("", err.Error())
}

func validateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Truncate(maxScale)) {
		return invalid(field, "must have at most two decimal places")
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return invalid(field, "is too large")
	}
	return nil
}

func validateEntry(e Entry) error {
	if strings.TrimSpace(e.Description) == "" {
		return invalid("description", "is required")
	}
	if len(e.Description) > 255 {
		return invalid("description", "is too long")
	}
	if err := validateAmount("amount", e.Amount); err != nil {
		return err
	}
	if !e.Type.Valid() {
		return invalid("type", "must be income or expense")
	}
	if e.CategoryID == uuid.Nil {
		return invalid("category_id", "is required")
	}
	if e.AccountID == uuid.Nil {
		return invalid("account_id", "is required")
	}
	if e.Date.IsZero() {
		return invalid("date", "is required")
	}
	if e.IsRecurring {
		if !e.RecurringFrequency.Valid() {
			return invalid("recurring_frequency", "must be daily, weekly, monthly or yearly")
		}
		if e.RecurringEndDate != nil && e.RecurringEndDate.Before(e.Date) {
			return invalid("recurring_end_date", "must not be before the entry date")
		}
	}
	return nil
}

// checkAccount enforces that entries only touch live accounts of the actor's
// company. Foreign accounts read as missing.
func checkAccount(acc Account, companyID uuid.UUID, field string) error {
	if acc.CompanyID != companyID {
		return invalid(field, "account not found")
	}
	if !acc.IsActive {
		return invalid(field, "account is inactive")
	}
	return nil
}

// checkCategory enforces company ownership and that the category type matches
// the entry. Foreign categories read as missing.
func checkCategory(cat Category, companyID uuid.UUID, typ EntryType) error {
	if cat.CompanyID != companyID {
		return invalid("category_id", "category not found")
	}
	if !cat.IsActive {
		return invalid("category_id", "category is inactive")
	}
	if cat.Type != typ {
		return invalid("category_id", "category type "+string(cat.Type)+" does not match entry type "+string(typ))
	}
	return nil
}

func normaliseCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

func normaliseTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
