package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/avvvet/rfid-relay/internal/relaysvc/command"
	"github.com/avvvet/rfid-relay/internal/relaysvc/ingress"
	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/avvvet/rfid-relay/internal/relaysvc/store"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// TopupRequest sets a card's balance. Amount is the new balance, not an
// increment.
type TopupRequest struct {
	UID      string           `json:"uid" validate:"required,min=4,printascii"`
	Amount   *decimal.Decimal `json:"amount" validate:"required"`
	NewOwner string           `json:"newOwner" validate:"omitempty,max=64,printascii"`
}

type ScanRequest struct {
	UID string `json:"uid" validate:"required"`
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.ListCards(r.Context())
	if err != nil {
		h.storeError(w, "unable to list cards", err)
		return
	}
	if cards == nil {
		cards = []models.Card{}
	}
	h.CreateResponse(w, Response{Message: "cards", Code: http.StatusOK, Data: cards})
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	card, err := h.cards.GetCard(r.Context(), uid)
	if err != nil {
		h.storeError(w, "unable to get card", err)
		return
	}
	h.CreateResponse(w, Response{Message: "card", Code: http.StatusOK, Data: card})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.CreateResponse(w, Response{
				Message: "invalid limit",
				Code:    http.StatusBadRequest,
				Error:   fmt.Sprintf("limit %q is not a non-negative integer", raw),
			})
			return
		}
		limit = n
	}

	txs, err := h.transactions.Recent(r.Context(), limit)
	if err != nil {
		h.storeError(w, "unable to list transactions", err)
		return
	}
	h.CreateResponse(w, Response{Message: "transactions", Code: http.StatusOK, Data: txs})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStats(r.Context())
	if err != nil {
		h.storeError(w, "unable to compute stats", err)
		return
	}
	h.CreateResponse(w, Response{Message: "stats", Code: http.StatusOK, Data: stats})
}

func (h *Handler) Topup(w http.ResponseWriter, r *http.Request) {
	var req TopupRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.CreateResponse(w, Response{Message: "invalid topup request", Code: http.StatusBadRequest, Error: err.Error()})
		return
	}

	res, err := h.relay.SetBalance(r.Context(), req.UID, *req.Amount, req.NewOwner, actor(r))
	switch {
	case err == nil:
		h.CreateResponse(w, Response{Message: "balance updated", Code: http.StatusOK, Data: res})
	case errors.Is(err, command.ErrPublishFailed):
		h.CreateResponse(w, Response{
			Message: "balance stored but card reader was not notified",
			Code:    http.StatusBadGateway,
			Data:    res,
			Error:   err.Error(),
		})
	default:
		h.storeError(w, "unable to update balance", err)
	}
}

// Scan registers a card typed in by an admin as if a reader had seen it.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.CreateResponse(w, Response{Message: "invalid scan request", Code: http.StatusBadRequest, Error: err.Error()})
		return
	}

	uid, ok := models.SanitizeUID(req.UID)
	if !ok {
		h.CreateResponse(w, Response{
			Message: "invalid scan request",
			Code:    http.StatusBadRequest,
			Error:   fmt.Sprintf("uid must be at least %d printable characters", models.MinUIDLength),
		})
		return
	}

	card, created, err := h.cards.GetOrCreate(r.Context(), uid)
	if err != nil {
		h.storeError(w, "unable to register card", err)
		return
	}

	if err := h.queue.Push(r.Context(), ingress.Detection(uid, h.scanTopic, h.now())); err != nil {
		log.WithField("uid", uid).Warnf("scan not forwarded to viewers: %v", err)
	}

	msg := "card scanned"
	if created {
		msg = "card registered"
	}
	h.CreateResponse(w, Response{Message: msg, Code: http.StatusOK, Data: card})
}

func (h *Handler) storeError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.CreateResponse(w, Response{Message: msg, Code: http.StatusNotFound, Error: err.Error()})
		return
	}
	log.Errorf("%s: %v", msg, err)
	h.CreateResponse(w, Response{Message: msg, Code: http.StatusInternalServerError, Error: "internal error"})
}

// actor names whoever holds the token, for the transaction audit trail.
func actor(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["service_id"]; ok {
		return fmt.Sprint(id)
	}
	return ""
}
