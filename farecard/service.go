package farecard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonanatree/farecard/farecard/models"
	"github.com/jonanatree/farecard/internal/cardgen"
	"github.com/jonanatree/farecard/internal/fare"
	"github.com/jonanatree/farecard/internal/fleet"
	"github.com/jonanatree/farecard/internal/membership"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slog"
)

const instrumentationName = "github.com/jonanatree/farecard"

var ErrInvalidMessage = errors.New("message is required")

type Service struct {
	repo    *Repository
	cfg     *Config
	logger  *slog.Logger
	policy  fare.Policy
	numbers cardgen.Provider

	inboxes   *membership.Inboxes
	program   *membership.Program
	fleet     *fleet.Fleet
	locations fleet.LocationProvider
	monitor   *fleet.Monitor

	tracer       trace.Tracer
	transactions metric.Int64Counter
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithFarePolicy(policy fare.Policy) ServiceOption {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithNumberProvider sets where new card numbers come from.
func WithNumberProvider(p cardgen.Provider) ServiceOption {
	return func(s *Service) {
		s.numbers = p
	}
}

// WithLocationProvider sets how vehicles are located for fleet reports.
func WithLocationProvider(p fleet.LocationProvider) ServiceOption {
	return func(s *Service) {
		s.locations = p
	}
}

func NewService(repo *Repository, cfg *Config, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	inboxes := membership.NewInboxes()
	s := &Service{
		repo:    repo,
		cfg:     cfg,
		logger:  slog.Default(),
		policy:  fare.NewDistance(cfg.FareRate),
		numbers: cardgen.NewRandom(cfg.CardPrefix, cfg.CardNumberLength),
		inboxes: inboxes,
		program: membership.NewProgram(inboxes),
		fleet:   fleet.New(),
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locations == nil {
		s.locations = fleet.NewRandomLocations(cfg.LocationSeed)
	}
	s.monitor = fleet.NewMonitor(s.fleet, s.locations)

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"farecard.transactions",
		metric.WithDescription("Fare card transactions by kind and result"),
	)
	if err != nil {
		s.logger.Warn("creating transactions counter", slog.Any("err", err))
		counter, _ = noop.Meter{}.Int64Counter("farecard.transactions")
	}
	s.transactions = counter

	return s
}

func (s *Service) IssueCard(ctx context.Context, req models.CreateCard) (models.CardView, error) {
	if req.Balance < 0 {
		return models.CardView{}, fmt.Errorf("opening balance %d: %w", req.Balance, models.ErrInvalidAmount)
	}

	exists := func(number string) (bool, error) { return s.repo.ExistsCardNumber(ctx, number) }

	// the existence check races with other issuers, so a conflicting
	// insert gets a fresh number
	for attempt := 0; attempt < 5; attempt++ {
		number, err := cardgen.GenerateUnique(s.numbers, 10, exists)
		if err != nil {
			return models.CardView{}, fmt.Errorf("generate unique card number: %w", err)
		}

		card, err := models.NewCard(uuid.New().String(), number, req.Balance)
		if err != nil {
			return models.CardView{}, err
		}
		card.HolderName = membership.NormalizeName(req.HolderName)

		err = s.repo.CreateCard(ctx, card)
		if err == nil {
			s.logger.Info("card issued",
				slog.String("card_id", card.ID),
				slog.String("number", cardgen.Mask(card.Number)),
			)
			return models.CardView{
				ID:         card.ID,
				Number:     card.Number,
				Balance:    card.Balance(),
				State:      models.AccessEnabled,
				HolderName: card.HolderName,
				CreatedAt:  card.CreatedAt,
			}, nil
		}
		if errors.Is(err, ErrConflict) {
			continue
		}
		return models.CardView{}, fmt.Errorf("creating card: %w", err)
	}
	return models.CardView{}, fmt.Errorf("could not create unique card after retries")
}

func (s *Service) GetCard(ctx context.Context, cardID string) (models.CardView, error) {
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return models.CardView{}, fmt.Errorf("finding card: %w", err)
	}
	return card, nil
}

func (s *Service) FindCardByNumber(ctx context.Context, number string) (models.CardView, error) {
	card, err := s.repo.FindCardByNumber(ctx, number)
	if err != nil {
		return models.CardView{}, fmt.Errorf("finding card by number: %w", err)
	}
	return card, nil
}

func (s *Service) EnableCard(ctx context.Context, cardID string) (models.CardView, error) {
	return s.setAccessState(ctx, cardID, models.AccessEnabled)
}

func (s *Service) DisableCard(ctx context.Context, cardID string) (models.CardView, error) {
	return s.setAccessState(ctx, cardID, models.AccessDisabled)
}

// SetCardState moves the card's gate to the named state.
func (s *Service) SetCardState(ctx context.Context, cardID, state string) (models.CardView, error) {
	to, err := models.ParseAccessState(state)
	if err != nil {
		return models.CardView{}, err
	}
	return s.setAccessState(ctx, cardID, to)
}

func (s *Service) setAccessState(ctx context.Context, cardID string, state models.AccessState) (models.CardView, error) {
	card, err := s.repo.SetAccessState(ctx, cardID, state)
	if err != nil {
		return models.CardView{}, fmt.Errorf("setting card %s: %w", state, err)
	}
	s.logger.Info("card access changed", slog.String("card_id", cardID), slog.String("state", string(state)))
	return card, nil
}

// PerformRide charges the fare for distance to the card.
func (s *Service) PerformRide(ctx context.Context, cardID string, distance float64) (models.Transaction, error) {
	return s.transact(ctx, "PerformRide", cardID, func(ctx context.Context, p Payments) (models.Transaction, error) {
		return p.PerformRide(ctx, distance)
	})
}

// MakePayment credits baseAmount plus the fare for distance to the card.
func (s *Service) MakePayment(ctx context.Context, cardID string, baseAmount int64, distance float64) (models.Transaction, error) {
	return s.transact(ctx, "MakePayment", cardID, func(ctx context.Context, p Payments) (models.Transaction, error) {
		return p.MakePayment(ctx, baseAmount, distance)
	})
}

func (s *Service) TopUp(ctx context.Context, cardID string, amount int64) (models.Transaction, error) {
	return s.transact(ctx, "TopUp", cardID, func(ctx context.Context, p Payments) (models.Transaction, error) {
		return p.TopUp(ctx, amount)
	})
}

func (s *Service) PerformRideByNumber(ctx context.Context, number string, distance float64) (models.Transaction, error) {
	card, err := s.FindCardByNumber(ctx, number)
	if err != nil {
		return models.Transaction{}, err
	}
	return s.PerformRide(ctx, card.ID, distance)
}

func (s *Service) MakePaymentByNumber(ctx context.Context, number string, baseAmount int64, distance float64) (models.Transaction, error) {
	card, err := s.FindCardByNumber(ctx, number)
	if err != nil {
		return models.Transaction{}, err
	}
	return s.MakePayment(ctx, card.ID, baseAmount, distance)
}

func (s *Service) TopUpByNumber(ctx context.Context, number string, amount int64) (models.Transaction, error) {
	card, err := s.FindCardByNumber(ctx, number)
	if err != nil {
		return models.Transaction{}, err
	}
	return s.TopUp(ctx, card.ID, amount)
}

// transact runs op against the card's account and journals the result.
// A journal failure is returned together with the transaction, since the
// balance has already changed by then.
func (s *Service) transact(ctx context.Context, op, cardID string, run func(context.Context, Payments) (models.Transaction, error)) (models.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "farecard."+op, trace.WithAttributes(attribute.String("card_id", cardID)))
	defer span.End()

	account, err := s.repo.Account(ctx, cardID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.Transaction{}, fmt.Errorf("finding card: %w", err)
	}

	p := NewProcessor(account, s.policy, WithNotifier(s.program), WithProcessorLogger(s.logger))
	txn, err := run(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.Transaction{}, err
	}

	span.SetAttributes(
		attribute.String("txn.id", txn.ID),
		attribute.String("txn.result", string(txn.Result)),
	)
	s.transactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(txn.Kind)),
		attribute.String("result", string(txn.Result)),
	))

	logger := s.logger.With(
		slog.String("card_id", cardID),
		slog.String("txn_id", txn.ID),
		slog.String("result", string(txn.Result)),
	)
	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		logger.Error("journaling transaction", slog.Any("err", err))
		span.SetStatus(codes.Error, err.Error())
		return txn, fmt.Errorf("journaling transaction %s: %w", txn.ID, err)
	}
	logger.Info(op, slog.Int64("amount", txn.Amount), slog.Int64("balance", txn.Balance))

	return txn, nil
}

// ListTransactions returns the card's transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, cardID string) ([]models.Transaction, error) {
	if _, err := s.repo.GetCard(ctx, cardID); err != nil {
		return nil, fmt.Errorf("finding card: %w", err)
	}
	transactions, err := s.repo.ListTransactions(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return transactions, nil
}

// EnrollMember signs the card's holder up for the membership program. A
// failed referral delivery is logged; the member stays enrolled.
func (s *Service) EnrollMember(ctx context.Context, cardID, name string) (membership.Member, error) {
	if _, err := s.repo.GetCard(ctx, cardID); err != nil {
		return membership.Member{}, fmt.Errorf("finding card: %w", err)
	}

	m, err := s.program.Enroll(ctx, cardID, name)
	if err != nil {
		if m.ID == "" {
			return membership.Member{}, fmt.Errorf("enrolling member: %w", err)
		}
		s.logger.Warn("running referral program", slog.String("member_id", m.ID), slog.Any("err", err))
	}
	return m, nil
}

// RemoveMember drops a member from the program. The card is not affected.
func (s *Service) RemoveMember(memberID string) error {
	if err := s.program.Remove(memberID); err != nil {
		return fmt.Errorf("removing member %s: %w", memberID, err)
	}
	s.logger.Info("member removed", slog.String("member_id", memberID))
	return nil
}

func (s *Service) Members() []membership.Member {
	return s.program.Members()
}

func (s *Service) Inbox(memberID string) ([]string, error) {
	if _, err := s.program.Member(memberID); err != nil {
		return nil, err
	}
	return s.inboxes.Messages(memberID), nil
}

func (s *Service) SendPromotion(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrInvalidMessage
	}
	if err := s.program.SendPromotionalOffers(ctx, message); err != nil {
		s.logger.Warn("sending promotional offers", slog.Any("err", err))
		return err
	}
	return nil
}

func (s *Service) SendReminder(ctx context.Context) error {
	if err := s.program.SendPeriodicReminder(ctx); err != nil {
		s.logger.Warn("sending reminder", slog.Any("err", err))
		return err
	}
	return nil
}

func (s *Service) AddVehicle(number string) (fleet.Vehicle, error) {
	v := fleet.Vehicle{Number: strings.TrimSpace(number)}
	if err := s.fleet.AddVehicle(v); err != nil {
		return fleet.Vehicle{}, err
	}
	return v, nil
}

func (s *Service) UpdateFleetStatus(status string) error {
	return s.fleet.UpdateStatus(status)
}

func (s *Service) VehicleLocation(ctx context.Context, number string) (fleet.Location, error) {
	return s.monitor.VehicleLocation(ctx, number)
}

func (s *Service) FleetReport(ctx context.Context) (fleet.Report, error) {
	return s.monitor.Report(ctx)
}
