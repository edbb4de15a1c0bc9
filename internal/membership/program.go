// Package membership runs the rider membership program: enrollment,
// referral bonuses, promotional offers and per-transaction receipts.
//
// The program is a sink. Failures here are reported to the caller and
// logged by it, they never undo a ledger mutation.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonanatree/farecard/farecard/models"
	"go.jetify.com/typeid/v2"
	"golang.org/x/sync/errgroup"
)

const (
	ReferralBonusPercent = 10
	ReminderMessage      = "Reminder: Enjoy our services and get special discounts!"

	maxNameLen = 26
	fanOut     = 8
)

var (
	ErrMemberExists   = errors.New("card already enrolled")
	ErrMemberNotFound = errors.New("member not found")
	ErrInvalidName    = errors.New("member name is required")
)

type Member struct {
	ID         string    `json:"id"`
	CardID     string    `json:"card_id"`
	Name       string    `json:"name"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Sink delivers a message to a member.
type Sink interface {
	Deliver(ctx context.Context, m Member, message string) error
}

type Program struct {
	sink Sink
	now  func() time.Time

	mu      sync.RWMutex
	members []Member
	byCard  map[string]int
}

func NewProgram(sink Sink) *Program {
	return &Program{
		sink:   sink,
		now:    time.Now,
		byCard: make(map[string]int),
	}
}

// Enroll adds the card's holder to the program and runs the referral
// program for them.
func (p *Program) Enroll(ctx context.Context, cardID, name string) (Member, error) {
	name = NormalizeName(name)
	if name == "" {
		return Member{}, ErrInvalidName
	}

	tid, err := typeid.Generate("mbr")
	if err != nil {
		return Member{}, fmt.Errorf("generating member id: %w", err)
	}

	p.mu.Lock()
	if _, ok := p.byCard[cardID]; ok {
		p.mu.Unlock()
		return Member{}, fmt.Errorf("card %s: %w", cardID, ErrMemberExists)
	}
	m := Member{
		ID:         tid.String(),
		CardID:     cardID,
		Name:       name,
		EnrolledAt: p.now().UTC(),
	}
	p.byCard[cardID] = len(p.members)
	p.members = append(p.members, m)
	p.mu.Unlock()

	return m, p.RunReferralProgram(ctx, m)
}

// Remove drops a member from the program.
func (p *Program) Remove(memberID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, m := range p.members {
		if m.ID != memberID {
			continue
		}
		p.members = append(p.members[:i], p.members[i+1:]...)
		p.byCard = make(map[string]int, len(p.members))
		for j, rest := range p.members {
			p.byCard[rest.CardID] = j
		}
		return nil
	}
	return ErrMemberNotFound
}

// Members returns members in enrollment order.
func (p *Program) Members() []Member {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Member, len(p.members))
	copy(out, p.members)
	return out
}

func (p *Program) Member(memberID string) (Member, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, m := range p.members {
		if m.ID == memberID {
			return m, nil
		}
	}
	return Member{}, ErrMemberNotFound
}

func (p *Program) MemberByCard(cardID string) (Member, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	i, ok := p.byCard[cardID]
	if !ok {
		return Member{}, false
	}
	return p.members[i], true
}

// RunReferralProgram welcomes the new member and credits the referring
// member, the earliest enrolled member other than the new one.
func (p *Program) RunReferralProgram(ctx context.Context, newMember Member) error {
	welcome := fmt.Sprintf("Welcome! You've received a %d%% bonus on your initial balance.", ReferralBonusPercent)
	if err := p.sink.Deliver(ctx, newMember, welcome); err != nil {
		return fmt.Errorf("delivering welcome: %w", err)
	}

	referrer, ok := p.referringMember(newMember)
	if !ok {
		return nil
	}
	congrats := fmt.Sprintf("Congratulations! You've earned a %d%% bonus for referring a new member.", ReferralBonusPercent)
	if err := p.sink.Deliver(ctx, referrer, congrats); err != nil {
		return fmt.Errorf("delivering referral bonus: %w", err)
	}
	return nil
}

func (p *Program) referringMember(newMember Member) (Member, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, m := range p.members {
		if m.ID != newMember.ID {
			return m, true
		}
	}
	return Member{}, false
}

// SendPromotionalOffers delivers message to every member. Delivery keeps
// going when one member fails; the joined errors are returned.
func (p *Program) SendPromotionalOffers(ctx context.Context, message string) error {
	members := p.Members()

	var (
		mu   sync.Mutex
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for _, m := range members {
		m := m
		g.Go(func() error {
			if err := p.sink.Deliver(ctx, m, message); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("member %s: %w", m.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (p *Program) SendPeriodicReminder(ctx context.Context) error {
	return p.SendPromotionalOffers(ctx, ReminderMessage)
}

// TransactionCompleted sends a receipt to the member holding the card, if
// any.
func (p *Program) TransactionCompleted(ctx context.Context, txn models.Transaction) error {
	m, ok := p.MemberByCard(txn.CardID)
	if !ok {
		return nil
	}

	var receipt string
	switch txn.Kind {
	case models.TransactionKindRide:
		receipt = fmt.Sprintf("Ride paid: %d. Balance: %d.", txn.Amount, txn.Balance)
	default:
		receipt = fmt.Sprintf("Added %d to your card. Balance: %d.", txn.Amount, txn.Balance)
	}
	return p.sink.Deliver(ctx, m, receipt)
}

// NormalizeName collapses whitespace, upper-cases and trims the name to
// what fits on a card face.
func NormalizeName(name string) string {
	normalized := strings.Join(strings.Fields(name), " ")
	up := strings.ToUpper(normalized)
	if len(up) > maxNameLen {
		return up[:maxNameLen]
	}
	return up
}
