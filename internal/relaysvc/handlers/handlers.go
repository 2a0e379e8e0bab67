package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/avvvet/rfid-relay/internal/relaysvc/command"
	"github.com/avvvet/rfid-relay/internal/relaysvc/hub"
	"github.com/avvvet/rfid-relay/internal/relaysvc/ingress"
	"github.com/avvvet/rfid-relay/internal/relaysvc/service"
	"github.com/go-chi/jwtauth"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	upgrader  websocket.Upgrader

	hub          *hub.Hub
	cards        *service.CardService
	transactions *service.TransactionService
	stats        *service.StatsService
	relay        *command.Relay
	queue        *ingress.Queue
	gatherer     prometheus.Gatherer

	scanTopic string
	port      string
	now       func() time.Time
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Hub          *hub.Hub
	Cards        *service.CardService
	Transactions *service.TransactionService
	Stats        *service.StatsService
	Relay        *command.Relay
	Queue        *ingress.Queue
	Gatherer     prometheus.Gatherer
	// ScanTopic is stamped on detections injected by POST /v1/scan.
	ScanTopic string
	Port      string
}

func NewHandler(d Deps) *Handler {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hub:          d.Hub,
		cards:        d.Cards,
		transactions: d.Transactions,
		stats:        d.Stats,
		relay:        d.Relay,
		queue:        d.Queue,
		gatherer:     d.Gatherer,
		scanTopic:    d.ScanTopic,
		port:         d.Port,
		now:          time.Now,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "relay service is running at port " + h.port,
		Code:    http.StatusOK,
		Data: map[string]int{
			"viewers": h.hub.Count(),
			"queued":  h.queue.Len(),
		},
	})
}
