package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eventloom/ticketpay/internal/adapters/pg"
	"github.com/eventloom/ticketpay/internal/checkout"
	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/gateway"
	"github.com/eventloom/ticketpay/internal/idempotency"
	"github.com/eventloom/ticketpay/internal/observability"
	"github.com/eventloom/ticketpay/internal/payout"
	"github.com/eventloom/ticketpay/internal/settlement"
)

type Handlers struct {
	repo     *pg.Repository
	checkout *checkout.Orchestrator
	payouts  *payout.Service
	engine   *settlement.Engine
	gw       *gateway.Client
	idemp    replayStore
	logger   observability.Logger
}

// replayStore is the slice of the idempotency layer the handlers use.
type replayStore interface {
	Get(ctx context.Context, key string) (*idempotency.Response, error)
	Set(ctx context.Context, key string, resp idempotency.Response) error
}

func NewHandlers(
	repo *pg.Repository,
	co *checkout.Orchestrator,
	payouts *payout.Service,
	engine *settlement.Engine,
	gw *gateway.Client,
	idemp replayStore,
	logger observability.Logger,
) *Handlers {
	return &Handlers{
		repo:     repo,
		checkout: co,
		payouts:  payouts,
		engine:   engine,
		gw:       gw,
		idemp:    idemp,
		logger:   logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

// writeError maps domain sentinels to HTTP statuses. Gateway transient
// failures are 502: the checkout session could not be created, but no
// payment is lost.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrEventFree),
		errors.Is(err, domain.ErrEventNotPublished),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrNotRegistered),
		errors.Is(err, domain.ErrGatewayRejected):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyRegistered),
		errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrSerializationFailure),
		errors.Is(err, domain.ErrLedgerConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrSecurityMismatch):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrGatewayUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]interface{}{"success": false, "error": err.Error()})
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrganizerID uuid.UUID `json:"organizer_id"`
		Title       string    `json:"title"`
		Price       string    `json:"price"`
		IsFree      bool      `json:"is_free"`
		Capacity    *int      `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	price := int64(0)
	if req.Price != "" {
		var err error
		price, err = domain.ParseAmount(req.Price)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	event, err := domain.NewEvent(req.OrganizerID, req.Title, price, req.IsFree, req.Capacity)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreateEvent(r.Context(), event); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"event_id": event.ID, "status": event.Status})
}

func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.repo.PublishEvent(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event_id": id, "status": domain.EventPublished})
}

func (h *Handlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		EventID    uuid.UUID `json:"event_id"`
		UserID     uuid.UUID `json:"user_id"`
		TicketType string    `json:"ticket_type"`
		Quantity   int       `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	result, err := h.checkout.StartCheckout(r.Context(), req.EventID, req.UserID, req.TicketType, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"attendee_id": result.AttendeeID,
		"pidx":        result.Pidx,
		"payment_url": result.PaymentURL,
		"amount":      domain.FormatAmount(result.Amount),
	})
	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data}); err != nil {
		h.logger.WithField("idempotency_key", key).Warn("failed to cache idempotent response", err)
	}
}

// PaymentStatus reports the payment state and, when still PENDING with a
// session on file, opportunistically re-verifies with the gateway and
// settles.
func (h *Handlers) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	att, err := h.repo.AttendeeByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if att.PaymentStatus == domain.PaymentPending && att.Pidx != nil {
		v, err := h.gw.Lookup(r.Context(), *att.Pidx)
		if err == nil && v.Status == gateway.StatusCompleted {
			if err := h.engine.VerifyAndApply(r.Context(), att, v); err == nil {
				writeJSON(w, http.StatusOK, map[string]interface{}{"status": domain.PaymentCompleted})
				return
			} else {
				h.logger.WithField("attendee_id", id).Error("status poll settlement failed", err)
			}
		} else if err != nil {
			h.logger.WithField("attendee_id", id).Debug("status poll verification failed", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": att.PaymentStatus})
}

// PaymentCallback handles the gateway redirect. The query parameters are an
// untrusted hint: the status is always re-verified server side before any
// settlement happens.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	pidx := r.URL.Query().Get("pidx")
	orderID := r.URL.Query().Get("purchase_order_id")
	if pidx == "" || orderID == "" {
		http.Error(w, "missing payment identifiers", http.StatusBadRequest)
		return
	}

	attendeeID, err := uuid.Parse(orderID)
	if err != nil {
		http.Error(w, "invalid purchase order id", http.StatusBadRequest)
		return
	}

	v, err := h.gw.Lookup(r.Context(), pidx)
	if err != nil {
		writeError(w, err)
		return
	}
	if v.Status != gateway.StatusCompleted {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": v.Status})
		return
	}

	att, err := h.repo.AttendeeByID(r.Context(), attendeeID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.engine.VerifyAndApply(r.Context(), att, v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": domain.PaymentCompleted})
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		UserID     uuid.UUID `json:"user_id"`
		TicketType string    `json:"ticket_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	att, err := h.checkout.RegisterForEvent(r.Context(), eventID, req.UserID, req.TicketType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"attendee_id": att.ID,
		"status":      att.Status,
	})
}

func (h *Handlers) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	if err := h.checkout.CancelRegistration(r.Context(), eventID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": domain.AttendeeCancelled})
}

func (h *Handlers) RequestPayout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		UserID      uuid.UUID `json:"user_id"`
		Amount      string    `json:"amount"`
		Destination string    `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.payouts.Request(r.Context(), req.UserID, amount, req.Destination)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"payout_id": p.ID,
		"status":    p.Status,
		"amount":    domain.FormatAmount(p.Amount),
	})
	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data}); err != nil {
		h.logger.WithField("idempotency_key", key).Warn("failed to cache idempotent response", err)
	}
}

func (h *Handlers) ResolvePayout(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		Status domain.PayoutStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.payouts.Resolve(r.Context(), id, req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payout_id": id, "status": req.Status})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
