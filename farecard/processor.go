package farecard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonanatree/farecard/farecard/models"
	"github.com/jonanatree/farecard/internal/fare"
	"go.jetify.com/typeid/v2"
	"golang.org/x/exp/slog"
)

// Account is a single card's ledger behind its access gate. Every balance
// change goes through GuardedCredit or GuardedDebit; they return
// models.ErrCardDisabled without touching the balance when the card is
// disabled and models.ErrInsufficientFunds when a debit would overdraw.
type Account interface {
	CardID() string
	GuardedCredit(ctx context.Context, amount int64) (int64, error)
	GuardedDebit(ctx context.Context, amount int64) (int64, error)
}

// Payments is the ride and payment capability offered to riders.
type Payments interface {
	PerformRide(ctx context.Context, distance float64) (models.Transaction, error)
	MakePayment(ctx context.Context, baseAmount int64, distance float64) (models.Transaction, error)
	TopUp(ctx context.Context, amount int64) (models.Transaction, error)
}

// Notifier is told about every successful transaction. Its errors are
// logged and never undo the transaction.
type Notifier interface {
	TransactionCompleted(ctx context.Context, txn models.Transaction) error
}

// Processor runs rides and payments for one card. The outcome of the gate
// and the ledger (success, insufficient funds, card disabled) is reported in
// the returned Transaction; the error return is reserved for invalid input
// and storage failures.
type Processor struct {
	account  Account
	policy   fare.Policy
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

var _ Payments = (*Processor)(nil)

type ProcessorOption func(*Processor)

func WithNotifier(n Notifier) ProcessorOption {
	return func(p *Processor) {
		p.notifier = n
	}
}

func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

func NewProcessor(account Account, policy fare.Policy, opts ...ProcessorOption) *Processor {
	p := &Processor{
		account: account,
		policy:  policy,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PerformRide charges the fare for distance to the card.
func (p *Processor) PerformRide(ctx context.Context, distance float64) (models.Transaction, error) {
	amount, err := p.policy.CalculateFare(distance)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("calculating fare: %w", err)
	}
	if amount <= 0 {
		return models.Transaction{}, fmt.Errorf("fare %d for distance %v: %w", amount, distance, models.ErrInvalidAmount)
	}

	balance, err := p.account.GuardedDebit(ctx, amount)
	return p.complete(ctx, models.TransactionKindRide, amount, balance, err)
}

// MakePayment adds baseAmount plus the fare for distance to the card's
// balance. It settles a payment made through the mobile app into the card,
// so the card is credited, not charged.
func (p *Processor) MakePayment(ctx context.Context, baseAmount int64, distance float64) (models.Transaction, error) {
	if baseAmount < 0 {
		return models.Transaction{}, fmt.Errorf("base amount %d: %w", baseAmount, models.ErrInvalidAmount)
	}
	amount, err := p.policy.CalculateFare(distance)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("calculating fare: %w", err)
	}

	if amount > math.MaxInt64-baseAmount {
		return models.Transaction{}, fmt.Errorf("payment %d plus fare %d: %w", baseAmount, amount, models.ErrInvalidAmount)
	}
	total := baseAmount + amount
	if total <= 0 {
		return models.Transaction{}, fmt.Errorf("payment total %d: %w", total, models.ErrInvalidAmount)
	}

	balance, err := p.account.GuardedCredit(ctx, total)
	return p.complete(ctx, models.TransactionKindTopUp, total, balance, err)
}

// TopUp adds amount to the card's balance.
func (p *Processor) TopUp(ctx context.Context, amount int64) (models.Transaction, error) {
	if amount <= 0 {
		return models.Transaction{}, fmt.Errorf("top-up %d: %w", amount, models.ErrInvalidAmount)
	}

	balance, err := p.account.GuardedCredit(ctx, amount)
	return p.complete(ctx, models.TransactionKindTopUp, amount, balance, err)
}

func (p *Processor) complete(ctx context.Context, kind models.TransactionKind, amount, balance int64, opErr error) (models.Transaction, error) {
	result, ok := models.ResultFromError(opErr)
	if !ok {
		return models.Transaction{}, opErr
	}

	tid, err := typeid.Generate("txn")
	if err != nil {
		return models.Transaction{}, fmt.Errorf("generating transaction id: %w", err)
	}

	txn := models.Transaction{
		ID:        tid.String(),
		CardID:    p.account.CardID(),
		Kind:      kind,
		Amount:    amount,
		Result:    result,
		Balance:   balance,
		CreatedAt: p.now().UTC(),
	}

	if txn.Succeeded() && p.notifier != nil {
		if err := p.notifier.TransactionCompleted(ctx, txn); err != nil {
			p.logger.Warn("notifying transaction",
				slog.String("txn_id", txn.ID),
				slog.String("card_id", txn.CardID),
				slog.Any("err", err),
			)
		}
	}

	return txn, nil
}

// gateAccount exposes an in-memory Gate as an Account.
type gateAccount struct {
	cardID string
	gate   *models.Gate
}

// NewGateAccount wraps an in-memory gate.
func NewGateAccount(cardID string, gate *models.Gate) Account {
	return &gateAccount{cardID: cardID, gate: gate}
}

func (a *gateAccount) CardID() string {
	return a.cardID
}

func (a *gateAccount) GuardedCredit(_ context.Context, amount int64) (int64, error) {
	return a.gate.GuardedCredit(amount)
}

func (a *gateAccount) GuardedDebit(_ context.Context, amount int64) (int64, error) {
	return a.gate.GuardedDebit(amount)
}
