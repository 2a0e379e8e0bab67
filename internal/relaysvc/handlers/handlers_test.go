package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/avvvet/rfid-relay/internal/relaysvc/command"
	"github.com/avvvet/rfid-relay/internal/relaysvc/hub"
	"github.com/avvvet/rfid-relay/internal/relaysvc/ingress"
	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/avvvet/rfid-relay/internal/relaysvc/service"
	"github.com/avvvet/rfid-relay/internal/relaysvc/store"
	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scanTopic = "rfid/ivan_bright/card/status"

type fakePublisher struct {
	sent []comm.TopupCommand
	err  error
}

func (p *fakePublisher) PublishTopup(cmd comm.TopupCommand) error {
	p.sent = append(p.sent, cmd)
	return p.err
}

type testEnv struct {
	server *httptest.Server
	mem    *store.MemoryStore
	pub    *fakePublisher
	hub    *hub.Hub
	queue  *ingress.Queue
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	pub := &fakePublisher{}
	cards := service.NewCardService(mem)
	viewers := hub.NewHub(8, nil)
	queue := ingress.NewQueue(8)

	h := NewHandler(Deps{
		Hub:          viewers,
		Cards:        cards,
		Transactions: service.NewTransactionService(mem, 0),
		Stats:        service.NewStatsService(mem, mem),
		Relay:        command.NewRelay(cards, pub, nil),
		Queue:        queue,
		Gatherer:     prometheus.NewRegistry(),
		ScanTopic:    scanTopic,
		Port:         "8080",
	})
	h.InitAuth("test-secret")
	_, token, err := h.TokenAuth().Encode(map[string]interface{}{"sub": "alice"})
	require.NoError(t, err)

	r := chi.NewRouter()
	h.SetRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		viewers.Close()
		srv.Close()
	})

	return &testEnv{server: srv, mem: mem, pub: pub, hub: viewers, queue: queue, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestSecureRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/v1/cards")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(env.server.URL + "/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListAndGetCards(t *testing.T) {
	env := newTestEnv(t)
	env.mem.PutCard(models.Card{UID: "AB12", Owner: "Ivan", Balance: decimal.NewFromInt(50), LastUpdated: time.Now()})
	env.mem.PutCard(models.Card{UID: "\x01\x02\x03\x04", Owner: "corrupt"})

	code, rsp := env.do(t, http.MethodGet, "/v1/cards", nil)
	assert.Equal(t, http.StatusOK, code)
	cards, ok := rsp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, cards, 1)

	code, rsp = env.do(t, http.MethodGet, "/v1/cards/AB12", nil)
	assert.Equal(t, http.StatusOK, code)
	card := rsp.Data.(map[string]interface{})
	assert.Equal(t, "Ivan", card["owner"])
	assert.Equal(t, 50.0, card["balance"])

	code, _ = env.do(t, http.MethodGet, "/v1/cards/ZZ99", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTopupSetsBalanceAndPublishesDelta(t *testing.T) {
	env := newTestEnv(t)
	env.mem.PutCard(models.Card{UID: "AB12", Owner: "Ivan", Balance: decimal.NewFromInt(80)})

	code, rsp := env.do(t, http.MethodPost, "/v1/topup", map[string]any{"uid": "AB12", "amount": 20, "newOwner": "Bright"})
	require.Equal(t, http.StatusOK, code, rsp.Error)

	require.Len(t, env.pub.sent, 1)
	assert.True(t, env.pub.sent[0].Amount.Equal(decimal.NewFromInt(-60)))
	assert.True(t, env.pub.sent[0].NewBalance.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "alice", env.pub.sent[0].PerformedBy)

	card, err := env.mem.GetCard(context.Background(), "AB12")
	require.NoError(t, err)
	assert.Equal(t, "Bright", card.Owner)
	assert.True(t, card.Balance.Equal(decimal.NewFromInt(20)))
}

func TestTopupErrors(t *testing.T) {
	env := newTestEnv(t)
	env.mem.PutCard(models.Card{UID: "AB12", Balance: decimal.NewFromInt(80)})

	code, _ := env.do(t, http.MethodPost, "/v1/topup", map[string]any{"uid": "AB12"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/v1/topup", map[string]any{"uid": "AB", "amount": 5})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/v1/topup", map[string]any{"uid": "ZZ99", "amount": 5})
	assert.Equal(t, http.StatusNotFound, code)

	env.pub.err = errors.New("nats: connection closed")
	code, rsp := env.do(t, http.MethodPost, "/v1/topup", map[string]any{"uid": "AB12", "amount": 5})
	assert.Equal(t, http.StatusBadGateway, code)
	result := rsp.Data.(map[string]interface{})
	assert.Equal(t, 5.0, result["card"].(map[string]interface{})["balance"])
}

func TestScanRegistersAndQueuesDetection(t *testing.T) {
	env := newTestEnv(t)

	code, rsp := env.do(t, http.MethodPost, "/v1/scan", map[string]any{"uid": " CD\x0734 "})
	require.Equal(t, http.StatusOK, code, rsp.Error)
	assert.Equal(t, "card registered", rsp.Message)

	card, err := env.mem.GetCard(context.Background(), "CD34")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultOwner, card.Owner)

	require.Equal(t, 1, env.queue.Len())
	ev := <-env.queue.Events()
	assert.Equal(t, "CD34", ev.UID())
	assert.Equal(t, ingress.Detected, ev.Presence.Status)
	assert.Equal(t, scanTopic, ev.Topic)

	code, _ = env.do(t, http.MethodPost, "/v1/scan", map[string]any{"uid": "\x01AB"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTransactionsAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.mem.PutCard(models.Card{UID: "AB12", Balance: decimal.NewFromInt(80)})
	env.mem.PutTransaction(models.Transaction{UID: "AB12", Amount: decimal.NewFromInt(30), Kind: models.KindTopup, Timestamp: time.Now()})

	code, rsp := env.do(t, http.MethodGet, "/v1/transactions?limit=10", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, rsp.Data, 1)

	code, _ = env.do(t, http.MethodGet, "/v1/transactions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, rsp = env.do(t, http.MethodGet, "/v1/stats", nil)
	assert.Equal(t, http.StatusOK, code)
	stats := rsp.Data.(map[string]interface{})
	assert.Equal(t, 1.0, stats["active_cards"])
	assert.Equal(t, 80.0, stats["total_balance"])
	assert.Equal(t, 30.0, stats["todays_topups"])
}

func TestWebSocketWelcomeThenBroadcast(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg comm.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, comm.TypeSystem, msg.Type)
	assert.JSONEq(t, `{"message":"Connection Established"}`, string(msg.Data))

	require.Eventually(t, func() bool { return env.hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, env.hub.Broadcast(comm.TypeCardStatus, comm.CardStatus{UID: "AB12", Present: false, Status: comm.StatusTimeout}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, comm.TypeCardStatus, msg.Type)
	assert.JSONEq(t, `{"uid":"AB12","present":false,"status":"timeout"}`, string(msg.Data))

	conn.Close()
	require.Eventually(t, func() bool { return env.hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}
