package farecard_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jonanatree/farecard/farecard"
	"github.com/jonanatree/farecard/farecard/models"
	"github.com/jonanatree/farecard/internal/fleet"
	"github.com/jonanatree/farecard/internal/membership"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	router := chi.NewRouter()
	api := farecard.NewAPI(newService(t, farecard.WithLocationProvider(fleet.FixedLocations{"BUS-7": {X: 1, Y: 2}})))
	api.AppendRoutes(router)
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	return w
}

func TestAPICards(t *testing.T) {
	router := newRouter(t)

	w := do(t, router, http.MethodPost, "/cards", models.CreateCard{Balance: 50})
	require.Equal(t, http.StatusCreated, w.Code)

	card := models.CardView{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	require.NotEmpty(t, card.ID)
	require.Equal(t, int64(50), card.Balance)
	require.Equal(t, models.AccessEnabled, card.State)

	t.Run("get card", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/cards/"+card.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = do(t, router, http.MethodGet, "/cards/missing", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ride, disable, ride, enable, pay", func(t *testing.T) {
		txn := models.Transaction{}

		w := do(t, router, http.MethodPost, "/cards/"+card.ID+"/rides", models.RideRequest{Distance: 5})
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
		require.Equal(t, models.TransactionResultSuccess, txn.Result)
		require.Equal(t, int64(40), txn.Balance)

		w = do(t, router, http.MethodPost, "/cards/"+card.ID+"/disable", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = do(t, router, http.MethodPost, "/cards/"+card.ID+"/rides", models.RideRequest{Distance: 5})
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
		require.Equal(t, models.TransactionResultCardDisabled, txn.Result)
		require.Equal(t, int64(40), txn.Balance)

		w = do(t, router, http.MethodPost, "/cards/"+card.ID+"/enable", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = do(t, router, http.MethodPost, "/cards/"+card.ID+"/payments", models.PaymentRequest{Amount: 10, Distance: 5})
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
		require.Equal(t, int64(60), txn.Balance)

		w = do(t, router, http.MethodPost, "/cards/"+card.ID+"/topups", models.TopUpRequest{Amount: 15})
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
		require.Equal(t, int64(75), txn.Balance)

		w = do(t, router, http.MethodGet, "/cards/"+card.ID+"/transactions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var txns []models.Transaction
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txns))
		require.Len(t, txns, 4)
		require.Equal(t, int64(75), txns[0].Balance)
	})

	t.Run("bad requests", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/cards/"+card.ID+"/rides", models.RideRequest{Distance: -1})
		require.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, router, http.MethodPost, "/cards/"+card.ID+"/topups", models.TopUpRequest{Amount: 0})
		require.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, router, http.MethodPost, "/cards", models.CreateCard{Balance: -5})
		require.Equal(t, http.StatusBadRequest, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cards/"+card.ID+"/rides", bytes.NewBufferString("{")))
		require.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, router, http.MethodPost, "/cards/missing/rides", models.RideRequest{Distance: 5})
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAPIMembersAndPromotions(t *testing.T) {
	router := newRouter(t)

	w := do(t, router, http.MethodPost, "/cards", models.CreateCard{Balance: 50})
	require.Equal(t, http.StatusCreated, w.Code)
	card := models.CardView{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))

	w = do(t, router, http.MethodPost, "/members", map[string]string{"card_id": card.ID, "name": "grace"})
	require.Equal(t, http.StatusCreated, w.Code)
	member := membership.Member{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
	require.Equal(t, "GRACE", member.Name)

	w = do(t, router, http.MethodPost, "/members", map[string]string{"card_id": card.ID, "name": "grace"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/members", map[string]string{"card_id": card.ID, "name": " "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/members", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var members []membership.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &members))
	require.Len(t, members, 1)

	w = do(t, router, http.MethodPost, "/promotions", map[string]string{"message": "Free rides tonight"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(t, router, http.MethodPost, "/promotions", map[string]string{"message": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/promotions/reminder", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(t, router, http.MethodGet, "/members/"+member.ID+"/inbox", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var inbox []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inbox))
	require.Len(t, inbox, 3)
	require.Equal(t, "Free rides tonight", inbox[1])
	require.Equal(t, membership.ReminderMessage, inbox[2])

	w = do(t, router, http.MethodGet, "/members/mbr_missing/inbox", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodDelete, "/members/"+member.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodDelete, "/members/"+member.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/members/"+member.ID+"/inbox", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPICardState(t *testing.T) {
	router := newRouter(t)

	w := do(t, router, http.MethodPost, "/cards", models.CreateCard{Balance: 50})
	require.Equal(t, http.StatusCreated, w.Code)
	card := models.CardView{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))

	w = do(t, router, http.MethodPut, "/cards/"+card.ID+"/state", map[string]string{"state": "disabled"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	require.Equal(t, models.AccessDisabled, card.State)

	w = do(t, router, http.MethodPost, "/cards/"+card.ID+"/rides", models.RideRequest{Distance: 5})
	require.Equal(t, http.StatusOK, w.Code)
	txn := models.Transaction{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
	require.Equal(t, models.TransactionResultCardDisabled, txn.Result)

	w = do(t, router, http.MethodPut, "/cards/"+card.ID+"/state", map[string]string{"state": "paused"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPut, "/cards/missing/state", map[string]string{"state": "enabled"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIFleet(t *testing.T) {
	router := newRouter(t)

	w := do(t, router, http.MethodPost, "/fleet/vehicles", fleet.Vehicle{Number: "BUS-7"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, http.MethodPost, "/fleet/vehicles", fleet.Vehicle{Number: "BUS-7"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/fleet/vehicles", fleet.Vehicle{Number: ""})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPut, "/fleet/status", map[string]string{"status": fleet.StatusUnderMaintenance})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/fleet/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := fleet.Report{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, fleet.StatusUnderMaintenance, report.FleetStatus)
	require.Equal(t, fleet.Location{X: 1, Y: 2}, report.VehicleLocations["BUS-7"])

	w = do(t, router, http.MethodGet, "/fleet/vehicles/BUS-7/location", nil)
	require.Equal(t, http.StatusOK, w.Code)
	loc := fleet.Location{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loc))
	require.Equal(t, fleet.Location{X: 1, Y: 2}, loc)

	w = do(t, router, http.MethodGet, "/fleet/vehicles/BUS-9/location", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
