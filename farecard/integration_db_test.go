package farecard_test

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/jonanatree/farecard/farecard"
	"github.com/jonanatree/farecard/farecard/models"
	"github.com/stretchr/testify/require"
)

// TestPostgresRideScenario runs the ledger against PostgreSQL. Skips unless
// FARECARD_DB_DSN is provided and FARECARD_REPO_BACKEND=pg.
func TestPostgresRideScenario(t *testing.T) {
	if os.Getenv("FARECARD_REPO_BACKEND") != farecard.BackendPostgres {
		t.Skip("FARECARD_REPO_BACKEND != pg; skipping DB integration test")
	}
	dsn := os.Getenv("FARECARD_DB_DSN")
	if dsn == "" {
		t.Skip("FARECARD_DB_DSN not set; skipping DB integration test")
	}

	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()

			db, err := sqlx.Open(driver, dsn)
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			require.NoError(t, db.PingContext(ctx))

			repo := farecard.NewSQLRepository(db, []byte("test-number-hash-key"))
			require.NoError(t, repo.Migrate(ctx))
			svc := farecard.NewService(repo, farecard.DefaultConfig())

			card, err := svc.IssueCard(ctx, models.CreateCard{Balance: 50})
			require.NoError(t, err)

			txn, err := svc.PerformRide(ctx, card.ID, 5)
			require.NoError(t, err)
			require.Equal(t, int64(40), txn.Balance)

			_, err = svc.DisableCard(ctx, card.ID)
			require.NoError(t, err)
			txn, err = svc.PerformRide(ctx, card.ID, 5)
			require.NoError(t, err)
			require.Equal(t, models.TransactionResultCardDisabled, txn.Result)

			_, err = svc.EnableCard(ctx, card.ID)
			require.NoError(t, err)
			txn, err = svc.MakePayment(ctx, card.ID, 10, 5)
			require.NoError(t, err)
			require.Equal(t, int64(60), txn.Balance)

			var hash string
			require.NoError(t, db.GetContext(ctx, &hash, db.Rebind(`SELECT number_hash FROM cards WHERE card_id = ?`), card.ID))
			require.NotEqual(t, card.Number, hash)

			byNumber, err := svc.FindCardByNumber(ctx, card.Number)
			require.NoError(t, err)
			require.Equal(t, card.ID, byNumber.ID)
		})
	}
}
