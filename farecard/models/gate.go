package models

import (
	"fmt"
	"sync"
)

// AccessState is the state of a card's access gate.
type AccessState string

const (
	AccessEnabled  AccessState = "enabled"
	AccessDisabled AccessState = "disabled"
)

func ParseAccessState(s string) (AccessState, error) {
	switch AccessState(s) {
	case AccessEnabled, AccessDisabled:
		return AccessState(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidState)
}

// Gate owns the enable/disable state of exactly one Card and is the only way
// to mutate the card's balance once the card is wrapped.
//
//	Enabled  --Disable()--> Disabled
//	Disabled --Enable()---> Enabled
//
// Guarded mutations are only forwarded to the card in the Enabled state.
// All methods are safe for concurrent use; mutations on one card are
// serialized by the gate's mutex.
type Gate struct {
	mu    sync.Mutex
	card  *Card
	state AccessState
}

// NewGate wraps card. New cards start enabled.
func NewGate(card *Card) *Gate {
	return &Gate{
		card:  card,
		state: AccessEnabled,
	}
}

func (g *Gate) Enable() {
	g.transition(AccessEnabled)
}

func (g *Gate) Disable() {
	g.transition(AccessDisabled)
}

func (g *Gate) transition(to AccessState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = to
}

func (g *Gate) State() AccessState {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

func (g *Gate) IsEnabled() bool {
	return g.State() == AccessEnabled
}

func (g *Gate) Balance() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.card.Balance()
}

// Snapshot returns a copy of the card together with its access state.
func (g *Gate) Snapshot() CardView {
	g.mu.Lock()
	defer g.mu.Unlock()

	return CardView{
		ID:         g.card.ID,
		Number:     g.card.Number,
		Balance:    g.card.Balance(),
		State:      g.state,
		HolderName: g.card.HolderName,
		CreatedAt:  g.card.CreatedAt,
	}
}

// GuardedCredit credits the card when the gate is enabled. A disabled gate
// returns ErrCardDisabled and leaves the balance untouched.
func (g *Gate) GuardedCredit(amount int64) (int64, error) {
	return g.guarded(amount, (*Card).Credit)
}

// GuardedDebit debits the card when the gate is enabled.
func (g *Gate) GuardedDebit(amount int64) (int64, error) {
	return g.guarded(amount, (*Card).Debit)
}

func (g *Gate) guarded(amount int64, op func(*Card, int64) (int64, error)) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != AccessEnabled {
		return g.card.Balance(), ErrCardDisabled
	}

	return op(g.card, amount)
}
