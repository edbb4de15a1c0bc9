package farecard_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/jonanatree/farecard/farecard"
	"github.com/jonanatree/farecard/farecard/models"
	"github.com/jonanatree/farecard/internal/fare"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	txns []models.Transaction
	err  error
}

func (n *recordingNotifier) TransactionCompleted(_ context.Context, txn models.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txns = append(n.txns, txn)
	return n.err
}

func newGate(t *testing.T, balance int64) *models.Gate {
	t.Helper()
	card, err := models.NewCard("card-1", "2344000016", balance)
	require.NoError(t, err)
	return models.NewGate(card)
}

func TestProcessorRideDisableEnablePayment(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, 50)
	notifier := &recordingNotifier{}
	p := farecard.NewProcessor(farecard.NewGateAccount("card-1", gate), fare.Default(), farecard.WithNotifier(notifier))

	txn, err := p.PerformRide(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, models.TransactionKindRide, txn.Kind)
	require.Equal(t, int64(10), txn.Amount)
	require.Equal(t, models.TransactionResultSuccess, txn.Result)
	require.Equal(t, int64(40), txn.Balance)
	require.Equal(t, "card-1", txn.CardID)
	require.True(t, strings.HasPrefix(txn.ID, "txn_"))

	gate.Disable()
	txn, err = p.PerformRide(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, models.TransactionResultCardDisabled, txn.Result)
	require.Equal(t, int64(40), txn.Balance)
	require.Equal(t, int64(40), gate.Balance())

	gate.Enable()
	txn, err = p.MakePayment(ctx, 10, 5)
	require.NoError(t, err)
	require.Equal(t, models.TransactionKindTopUp, txn.Kind)
	require.Equal(t, int64(20), txn.Amount)
	require.Equal(t, models.TransactionResultSuccess, txn.Result)
	require.Equal(t, int64(60), txn.Balance)
	require.Equal(t, int64(60), gate.Balance())

	// only successful transactions are announced
	require.Len(t, notifier.txns, 2)
}

func TestProcessorInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, 5)
	p := farecard.NewProcessor(farecard.NewGateAccount("card-1", gate), fare.Default())

	for i := 0; i < 3; i++ {
		txn, err := p.PerformRide(ctx, 5)
		require.NoError(t, err)
		require.Equal(t, models.TransactionResultInsufficientFunds, txn.Result)
		require.Equal(t, int64(5), txn.Balance)
	}
	require.Equal(t, int64(5), gate.Balance())
}

func TestProcessorRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, 50)
	p := farecard.NewProcessor(farecard.NewGateAccount("card-1", gate), fare.Default())

	_, err := p.PerformRide(ctx, -1)
	require.ErrorIs(t, err, fare.ErrInvalidDistance)

	_, err = p.PerformRide(ctx, 0)
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = p.MakePayment(ctx, -10, 5)
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = p.MakePayment(ctx, 0, 0)
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = p.TopUp(ctx, 0)
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	require.Equal(t, int64(50), gate.Balance())
}

func TestProcessorNotifierFailureKeepsTransaction(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, 50)
	notifier := &recordingNotifier{err: errors.New("mailbox full")}
	p := farecard.NewProcessor(farecard.NewGateAccount("card-1", gate), fare.Default(), farecard.WithNotifier(notifier))

	txn, err := p.TopUp(ctx, 25)
	require.NoError(t, err)
	require.Equal(t, models.TransactionResultSuccess, txn.Result)
	require.Equal(t, int64(75), gate.Balance())
	require.Len(t, notifier.txns, 1)
}

func TestProcessorUsesInjectedPolicy(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, 50)
	flat := fare.PolicyFunc(func(float64) (int64, error) { return 7, nil })
	p := farecard.NewProcessor(farecard.NewGateAccount("card-1", gate), flat)

	txn, err := p.PerformRide(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, int64(7), txn.Amount)
	require.Equal(t, int64(43), txn.Balance)
}

func TestProcessorRejectsCreditsBeyondLargestBalance(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, 10)
	notifier := &recordingNotifier{}
	p := farecard.NewProcessor(farecard.NewGateAccount("card-1", gate), fare.Default(), farecard.WithNotifier(notifier))

	_, err := p.TopUp(ctx, math.MaxInt64)
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = p.MakePayment(ctx, math.MaxInt64, 5)
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = p.MakePayment(ctx, math.MaxInt64-5, 5)
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	require.Equal(t, int64(10), gate.Balance())
	require.Empty(t, notifier.txns)
}
