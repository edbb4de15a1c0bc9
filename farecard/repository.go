package farecard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	pgxconn "github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/jonanatree/farecard/farecard/models"
	"github.com/jonanatree/farecard/internal/cardgen"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound = models.ErrNotFound
	ErrConflict = errors.New("conflict")
)

type cardRecord struct {
	gate *models.Gate
}

// Repository stores cards and their transaction journal. Without a database
// it keeps everything in memory; with one it works against PostgreSQL or
// SQLite through sqlx.
type Repository struct {
	mu           sync.RWMutex
	cards        map[string]*cardRecord
	byNumber     map[string]string
	transactions []models.Transaction

	db      *sqlx.DB
	hashKey []byte
}

func NewRepository() *Repository {
	return &Repository{
		cards:    make(map[string]*cardRecord),
		byNumber: make(map[string]string),
	}
}

// NewSQLRepository constructs a db-backed repository. hashKey keys the HMAC
// used to index card numbers.
func NewSQLRepository(db *sqlx.DB, hashKey []byte) *Repository {
	return &Repository{db: db, hashKey: hashKey}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cards (
		card_id     TEXT PRIMARY KEY,
		number      TEXT NOT NULL,
		number_hash TEXT NOT NULL UNIQUE,
		holder_name TEXT NOT NULL DEFAULT '',
		balance     BIGINT NOT NULL CHECK (balance >= 0),
		enabled     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		tx_id      TEXT PRIMARY KEY,
		card_id    TEXT NOT NULL REFERENCES cards(card_id),
		kind       TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		result     TEXT NOT NULL,
		balance    BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_card_created_idx ON transactions(card_id, created_at)`,
}

// Migrate creates the tables when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type cardRow struct {
	ID         string    `db:"card_id"`
	Number     string    `db:"number"`
	HolderName string    `db:"holder_name"`
	Balance    int64     `db:"balance"`
	Enabled    bool      `db:"enabled"`
	CreatedAt  time.Time `db:"created_at"`
}

func (c cardRow) view() models.CardView {
	state := models.AccessDisabled
	if c.Enabled {
		state = models.AccessEnabled
	}
	return models.CardView{
		ID:         c.ID,
		Number:     c.Number,
		Balance:    c.Balance,
		State:      state,
		HolderName: c.HolderName,
		CreatedAt:  c.CreatedAt.UTC(),
	}
}

const selectCard = `SELECT card_id, number, holder_name, balance, enabled, created_at FROM cards`

func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.byNumber[card.Number]; ok {
			return fmt.Errorf("card number exists: %w", ErrConflict)
		}
		r.cards[card.ID] = &cardRecord{gate: models.NewGate(card)}
		r.byNumber[card.Number] = card.ID
		return nil
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO cards(card_id, number, number_hash, holder_name, balance, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), card.ID, card.Number, cardgen.HashNumber(card.Number, r.hashKey), card.HolderName, card.Balance(), true, card.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("card number exists: %w", ErrConflict)
	}
	return err
}

// ExistsCardNumber reports whether a card number is already issued.
func (r *Repository) ExistsCardNumber(ctx context.Context, number string) (bool, error) {
	_, err := r.FindCardByNumber(ctx, number)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) GetCard(ctx context.Context, cardID string) (models.CardView, error) {
	if r.db == nil {
		rec, err := r.record(cardID)
		if err != nil {
			return models.CardView{}, err
		}
		return rec.gate.Snapshot(), nil
	}
	var row cardRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(selectCard+` WHERE card_id = ?`), cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CardView{}, ErrNotFound
	}
	if err != nil {
		return models.CardView{}, err
	}
	return row.view(), nil
}

func (r *Repository) FindCardByNumber(ctx context.Context, number string) (models.CardView, error) {
	number = cardgen.Normalize(number)
	if r.db == nil {
		r.mu.RLock()
		id, ok := r.byNumber[number]
		r.mu.RUnlock()
		if !ok {
			return models.CardView{}, ErrNotFound
		}
		return r.GetCard(ctx, id)
	}
	var row cardRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(selectCard+` WHERE number_hash = ?`), cardgen.HashNumber(number, r.hashKey))
	if errors.Is(err, sql.ErrNoRows) {
		return models.CardView{}, ErrNotFound
	}
	if err != nil {
		return models.CardView{}, err
	}
	return row.view(), nil
}

// SetAccessState enables or disables a card and returns its new state.
func (r *Repository) SetAccessState(ctx context.Context, cardID string, state models.AccessState) (models.CardView, error) {
	if r.db == nil {
		rec, err := r.record(cardID)
		if err != nil {
			return models.CardView{}, err
		}
		if state == models.AccessEnabled {
			rec.gate.Enable()
		} else {
			rec.gate.Disable()
		}
		return rec.gate.Snapshot(), nil
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE cards SET enabled = ? WHERE card_id = ?`), state == models.AccessEnabled, cardID)
	if err != nil {
		return models.CardView{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.CardView{}, ErrNotFound
	}
	return r.GetCard(ctx, cardID)
}

// Account returns the guarded ledger of a card.
func (r *Repository) Account(ctx context.Context, cardID string) (Account, error) {
	if r.db == nil {
		rec, err := r.record(cardID)
		if err != nil {
			return nil, err
		}
		return NewGateAccount(cardID, rec.gate), nil
	}
	if _, err := r.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	return &sqlAccount{db: r.db, cardID: cardID}, nil
}

func (r *Repository) record(cardID string) (*cardRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.cards[cardID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) CreateTransaction(ctx context.Context, txn models.Transaction) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.transactions = append(r.transactions, txn)
		return nil
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO transactions(tx_id, card_id, kind, amount, result, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), txn.ID, txn.CardID, string(txn.Kind), txn.Amount, string(txn.Result), txn.Balance, txn.CreatedAt)
	return err
}

type transactionRow struct {
	ID        string    `db:"tx_id"`
	CardID    string    `db:"card_id"`
	Kind      string    `db:"kind"`
	Amount    int64     `db:"amount"`
	Result    string    `db:"result"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
}

// ListTransactions returns the card's transactions, newest first.
func (r *Repository) ListTransactions(ctx context.Context, cardID string) ([]models.Transaction, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		var out []models.Transaction
		for i := len(r.transactions) - 1; i >= 0; i-- {
			if t := r.transactions[i]; t.CardID == cardID {
				out = append(out, t)
			}
		}
		return out, nil
	}
	var rows []transactionRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT tx_id, card_id, kind, amount, result, balance, created_at
		  FROM transactions WHERE card_id = ?
		 ORDER BY created_at DESC, tx_id DESC
	`), cardID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Transaction{
			ID:        row.ID,
			CardID:    row.CardID,
			Kind:      models.TransactionKind(row.Kind),
			Amount:    row.Amount,
			Result:    models.TransactionResult(row.Result),
			Balance:   row.Balance,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// Ping returns DB readiness.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// sqlAccount keeps the balance guard in the database: a debit is a single
// conditional UPDATE, so concurrent rides on one card cannot both pass the
// balance check.
type sqlAccount struct {
	db     *sqlx.DB
	cardID string
}

func (a *sqlAccount) CardID() string {
	return a.cardID
}

func (a *sqlAccount) GuardedCredit(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return a.reject(ctx, fmt.Errorf("credit %d: %w", amount, models.ErrInvalidAmount))
	}
	// the headroom condition keeps balance + amount inside BIGINT
	return a.update(ctx, fmt.Errorf("credit %d overflows balance: %w", amount, models.ErrInvalidAmount), `
		UPDATE cards SET balance = balance + ?
		 WHERE card_id = ? AND enabled = ? AND balance <= ?
		RETURNING balance
	`, amount, a.cardID, true, math.MaxInt64-amount)
}

func (a *sqlAccount) GuardedDebit(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return a.reject(ctx, fmt.Errorf("debit %d: %w", amount, models.ErrInvalidAmount))
	}
	return a.update(ctx, models.ErrInsufficientFunds, `
		UPDATE cards SET balance = balance - ?
		 WHERE card_id = ? AND enabled = ? AND balance >= ?
		RETURNING balance
	`, amount, a.cardID, true, amount)
}

// update runs a guarded balance change. When no row qualifies, the card is
// reported as disabled or, failing that, rejected with cause.
func (a *sqlAccount) update(ctx context.Context, cause error, query string, args ...any) (int64, error) {
	var balance int64
	err := a.db.QueryRowxContext(ctx, a.db.Rebind(query), args...).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return a.reject(ctx, cause)
}

// reject reports the card's current balance with cause, unless the card is
// disabled, which takes precedence over any other outcome.
func (a *sqlAccount) reject(ctx context.Context, cause error) (int64, error) {
	var row struct {
		Balance int64 `db:"balance"`
		Enabled bool  `db:"enabled"`
	}
	err := a.db.GetContext(ctx, &row, a.db.Rebind(`SELECT balance, enabled FROM cards WHERE card_id = ?`), a.cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if !row.Enabled {
		return row.Balance, models.ErrCardDisabled
	}
	return row.Balance, cause
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	var pgxerr *pgxconn.PgError
	if errors.As(err, &pgxerr) && pgxerr.Code == "23505" {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
