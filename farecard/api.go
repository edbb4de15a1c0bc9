package farecard

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonanatree/farecard/farecard/models"
	"github.com/jonanatree/farecard/internal/fare"
	"github.com/jonanatree/farecard/internal/fleet"
	"github.com/jonanatree/farecard/internal/membership"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/exp/slog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// API is a HTTP API for the fare card service
type API struct {
	svc *Service
}

func NewAPI(svc *Service) *API {
	return &API{
		svc: svc,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/cards", func(r chi.Router) {
		r.Post("/", a.issueCard)
		r.Route("/{cardID}", func(r chi.Router) {
			r.Get("/", a.getCard)
			r.Post("/enable", a.enableCard)
			r.Post("/disable", a.disableCard)
			r.Put("/state", a.setCardState)
			r.Post("/rides", a.performRide)
			r.Post("/payments", a.makePayment)
			r.Post("/topups", a.topUp)
			r.Get("/transactions", a.getTransactions)
		})
	})
	r.Route("/members", func(r chi.Router) {
		r.Post("/", a.enrollMember)
		r.Get("/", a.listMembers)
		r.Delete("/{memberID}", a.removeMember)
		r.Get("/{memberID}/inbox", a.getInbox)
	})
	r.Route("/promotions", func(r chi.Router) {
		r.Post("/", a.sendPromotion)
		r.Post("/reminder", a.sendReminder)
	})
	r.Route("/fleet", func(r chi.Router) {
		r.Post("/vehicles", a.addVehicle)
		r.Get("/vehicles/{number}/location", a.vehicleLocation)
		r.Put("/status", a.updateFleetStatus)
		r.Get("/report", a.fleetReport)
	})
}

func (a *API) issueCard(w http.ResponseWriter, r *http.Request) {
	create := models.CreateCard{}
	if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	card, err := a.svc.IssueCard(r.Context(), create)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, card)
}

func (a *API) getCard(w http.ResponseWriter, r *http.Request) {
	card, err := a.svc.GetCard(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, card)
}

func (a *API) enableCard(w http.ResponseWriter, r *http.Request) {
	card, err := a.svc.EnableCard(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, card)
}

func (a *API) disableCard(w http.ResponseWriter, r *http.Request) {
	card, err := a.svc.DisableCard(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, card)
}

func (a *API) setCardState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	card, err := a.svc.SetCardState(r.Context(), chi.URLParam(r, "cardID"), body.State)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, card)
}

// performRide answers 200 for every ride outcome; a declined ride is
// reported in the result field, not as an HTTP error.
func (a *API) performRide(w http.ResponseWriter, r *http.Request) {
	req := models.RideRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txn, err := a.svc.PerformRide(r.Context(), chi.URLParam(r, "cardID"), req.Distance)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, txn)
}

func (a *API) makePayment(w http.ResponseWriter, r *http.Request) {
	req := models.PaymentRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txn, err := a.svc.MakePayment(r.Context(), chi.URLParam(r, "cardID"), req.Amount, req.Distance)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, txn)
}

func (a *API) topUp(w http.ResponseWriter, r *http.Request) {
	req := models.TopUpRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txn, err := a.svc.TopUp(r.Context(), chi.URLParam(r, "cardID"), req.Amount)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, txn)
}

func (a *API) getTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := a.svc.ListTransactions(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	a.writeJSON(w, http.StatusOK, transactions)
}

func (a *API) enrollMember(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CardID string `json:"card_id"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	member, err := a.svc.EnrollMember(r.Context(), body.CardID, body.Name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, member)
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.svc.Members())
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.RemoveMember(chi.URLParam(r, "memberID")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getInbox(w http.ResponseWriter, r *http.Request) {
	messages, err := a.svc.Inbox(chi.URLParam(r, "memberID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []string{}
	}
	a.writeJSON(w, http.StatusOK, messages)
}

func (a *API) sendPromotion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := a.svc.SendPromotion(r.Context(), body.Message); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) sendReminder(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.SendReminder(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) addVehicle(w http.ResponseWriter, r *http.Request) {
	var body fleet.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vehicle, err := a.svc.AddVehicle(body.Number)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, vehicle)
}

func (a *API) updateFleetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := a.svc.UpdateFleetStatus(body.Status); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, body)
}

func (a *API) vehicleLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := a.svc.VehicleLocation(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, loc)
}

func (a *API) fleetReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.FleetReport(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, report)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is already out; a failed body can only be logged
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.svc.logger.Warn("encoding response", slog.Int("status", status), slog.Any("err", err))
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.svc.logger.Error("request failed", slog.Any("err", err))
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, membership.ErrMemberNotFound), errors.Is(err, fleet.ErrVehicleNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, membership.ErrMemberExists), errors.Is(err, fleet.ErrVehicleExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, fare.ErrInvalidDistance),
		errors.Is(err, membership.ErrInvalidName),
		errors.Is(err, fleet.ErrInvalidVehicle),
		errors.Is(err, fleet.ErrInvalidStatus),
		errors.Is(err, ErrInvalidMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
