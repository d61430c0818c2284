package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/conectell/livrocaixa/internal/platform/db"
)

// Repository persists ledger state in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, company_id, name, type, description, balance, currency, is_active, version, created_at, updated_at`

const entryViewSelect = `SELECT e.id, e.company_id, e.description, e.amount, e.type, e.category_id, e.account_id, e.date,
e.notes, e.tags, e.is_recurring, e.recurring_frequency, e.recurring_end_date, e.created_by, e.created_at, e.updated_at,
c.name, c.color, c.icon, a.name, a.type
FROM entries e
JOIN categories c ON c.id = e.category_id
JOIN accounts a ON a.id = e.account_id`

const entryColumns = `id, company_id, description, amount, type, category_id, account_id, date, notes, tags,
is_recurring, recurring_frequency, recurring_end_date, created_by, created_at, updated_at`

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetAccount fetches an account by id.
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	return getAccount(ctx, r.pool, id)
}

// ListAccounts returns accounts ordered by name.
func (r *Repository) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`
	args := []any{}
	if filter.CompanyID != nil {
		args = append(args, *filter.CompanyID)
		query += ` AND company_id = $` + strconv.Itoa(len(args))
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		query += ` AND type = $` + strconv.Itoa(len(args))
	}
	if !filter.IncludeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY name, id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// GetEntry fetches one entry with its category and account summaries.
func (r *Repository) GetEntry(ctx context.Context, id uuid.UUID) (EntryView, error) {
	return scanEntryView(r.pool.QueryRow(ctx, entryViewSelect+` WHERE e.id = $1`, id))
}

// ListEntries returns entries newest first.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]EntryView, error) {
	query, args := buildEntryQuery(filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []EntryView
	for rows.Next() {
		view, err := scanEntryView(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, view)
	}
	return entries, rows.Err()
}

func buildEntryQuery(filter EntryFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(entryViewSelect)
	args := []any{filter.CompanyID}
	sb.WriteString(` WHERE e.company_id = $1`)
	add := func(clause string, v any) {
		args = append(args, v)
		sb.WriteString(` AND ` + strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.Type != nil {
		add(`e.type = ?`, string(*filter.Type))
	}
	if filter.CategoryID != nil {
		add(`e.category_id = ?`, *filter.CategoryID)
	}
	if filter.AccountID != nil {
		add(`e.account_id = ?`, *filter.AccountID)
	}
	if filter.From != nil {
		add(`e.date >= ?`, *filter.From)
	}
	if filter.To != nil {
		add(`e.date <= ?`, *filter.To)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add(`(e.description ILIKE ? OR e.notes ILIKE ?)`, "%"+s+"%")
	}
	if filter.RecurringOnly {
		sb.WriteString(` AND e.is_recurring`)
	}
	sb.WriteString(` ORDER BY e.date DESC, e.created_at DESC`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}
	return sb.String(), args
}

// ListPostings returns the most recent postings of an account.
func (r *Repository) ListPostings(ctx context.Context, accountID uuid.UUID, limit int) ([]Posting, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, account_id, company_id, entry_id, kind, amount, balance_after, version_after, actor_id, created_at
FROM postings WHERE account_id = $1 ORDER BY version_after DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var postings []Posting
	for rows.Next() {
		var (
			p       Posting
			entryID pgtype.UUID
			actorID pgtype.UUID
			kind    string
		)
		if err := rows.Scan(&p.ID, &p.AccountID, &p.CompanyID, &entryID, &kind, &p.Amount, &p.BalanceAfter, &p.VersionAfter, &actorID, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Kind = PostingKind(kind)
		if entryID.Valid {
			id := uuid.UUID(entryID.Bytes)
			p.EntryID = &id
		}
		if actorID.Valid {
			p.ActorID = uuid.UUID(actorID.Bytes)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (r *txRepository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	return getAccount(ctx, r.tx, id)
}

func (r *txRepository) GetCategory(ctx context.Context, id uuid.UUID) (Category, error) {
	var (
		c   Category
		typ string
	)
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, name, color, icon, type, is_active FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.CompanyID, &c.Name, &c.Color, &c.Icon, &typ, &c.IsActive)
	if err != nil {
		return Category{}, err
	}
	c.Type = EntryType(typ)
	return c, nil
}

func (r *txRepository) InsertAccount(ctx context.Context, acc Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (id, company_id, name, type, description, balance, currency, is_active, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7, 0, $8, $8) RETURNING `+accountColumns,
		acc.ID, acc.CompanyID, acc.Name, string(acc.Type), acc.Description, acc.Currency, acc.IsActive, acc.CreatedAt)
	return scanAccount(row)
}

func (r *txRepository) UpdateAccount(ctx context.Context, acc Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `UPDATE accounts SET name = $2, type = $3, description = $4, currency = $5, is_active = $6, updated_at = $7
WHERE id = $1 RETURNING `+accountColumns,
		acc.ID, acc.Name, string(acc.Type), acc.Description, acc.Currency, acc.IsActive, acc.UpdatedAt)
	return scanAccount(row)
}

func (r *txRepository) ApplyDelta(ctx context.Context, accountID uuid.UUID, expectedVersion int64, delta decimal.Decimal) (Account, error) {
	row := r.tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $3, version = version + 1, updated_at = NOW()
WHERE id = $1 AND version = $2 RETURNING `+accountColumns, accountID, expectedVersion, delta)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, conflict("account " + accountID.String() + " changed since it was read")
	}
	return acc, err
}

func (r *txRepository) InsertPosting(ctx context.Context, p Posting) error {
	var entryID any
	if p.EntryID != nil {
		entryID = *p.EntryID
	}
	var actorID any
	if p.ActorID != uuid.Nil {
		actorID = p.ActorID
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO postings (id, account_id, company_id, entry_id, kind, amount, balance_after, version_after, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.AccountID, p.CompanyID, entryID, string(p.Kind), p.Amount, p.BalanceAfter, p.VersionAfter, actorID, p.CreatedAt)
	return err
}

func (r *txRepository) SumPostings(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM postings WHERE account_id = $1`, accountID).Scan(&total)
	return total, err
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (Entry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO entries (id, company_id, description, amount, type, category_id, account_id, date, notes, tags,
is_recurring, recurring_frequency, recurring_end_date, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15) RETURNING `+entryColumns,
		e.ID, e.CompanyID, e.Description, e.Amount, string(e.Type), e.CategoryID, e.AccountID, e.Date, e.Notes, tagsParam(e.Tags),
		e.IsRecurring, nullFrequency(e.RecurringFrequency), e.RecurringEndDate, nullUUID(e.CreatedBy), e.CreatedAt)
	return scanEntry(row)
}

func (r *txRepository) UpdateEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `UPDATE entries SET description = $2, amount = $3, type = $4, category_id = $5, account_id = $6, date = $7,
notes = $8, tags = $9, is_recurring = $10, recurring_frequency = $11, recurring_end_date = $12, updated_at = $13
WHERE id = $1 RETURNING `+entryColumns,
		e.ID, e.Description, e.Amount, string(e.Type), e.CategoryID, e.AccountID, e.Date, e.Notes, tagsParam(e.Tags),
		e.IsRecurring, nullFrequency(e.RecurringFrequency), e.RecurringEndDate, e.UpdatedAt)
	return scanEntry(row)
}

func (r *txRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func getAccount(ctx context.Context, q querier, id uuid.UUID) (Account, error) {
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acc Account
		typ string
	)
	err := row.Scan(&acc.ID, &acc.CompanyID, &acc.Name, &typ, &acc.Description, &acc.Balance, &acc.Currency,
		&acc.IsActive, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	acc.Type = AccountType(typ)
	return acc, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e         Entry
		typ       string
		frequency *string
		createdBy pgtype.UUID
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.Description, &e.Amount, &typ, &e.CategoryID, &e.AccountID, &e.Date,
		&e.Notes, &e.Tags, &e.IsRecurring, &frequency, &e.RecurringEndDate, &createdBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Type = EntryType(typ)
	if frequency != nil {
		e.RecurringFrequency = Frequency(*frequency)
	}
	if createdBy.Valid {
		e.CreatedBy = uuid.UUID(createdBy.Bytes)
	}
	return e, nil
}

func scanEntryView(row pgx.Row) (EntryView, error) {
	var (
		v         EntryView
		typ       string
		frequency *string
		createdBy pgtype.UUID
		accType   string
	)
	err := row.Scan(&v.ID, &v.CompanyID, &v.Description, &v.Amount, &typ, &v.CategoryID, &v.AccountID, &v.Date,
		&v.Notes, &v.Tags, &v.IsRecurring, &frequency, &v.RecurringEndDate, &createdBy, &v.CreatedAt, &v.UpdatedAt,
		&v.Category.Name, &v.Category.Color, &v.Category.Icon, &v.Account.Name, &accType)
	if err != nil {
		return EntryView{}, err
	}
	v.Type = EntryType(typ)
	if frequency != nil {
		v.RecurringFrequency = Frequency(*frequency)
	}
	if createdBy.Valid {
		v.CreatedBy = uuid.UUID(createdBy.Bytes)
	}
	v.Category.ID = v.CategoryID
	v.Account.ID = v.AccountID
	v.Account.Type = AccountType(accType)
	return v, nil
}

func tagsParam(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nullFrequency(f Frequency) any {
	if f == "" {
		return nil
	}
	return string(f)
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
