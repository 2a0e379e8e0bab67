package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/avvvet/rfid-relay/internal/relaysvc/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait   = 10 * time.Second
	pingPeriod  = 54 * time.Second
	WelcomeText = "Connection Established"
)

// Conn is the write side of a viewer connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Hub owns the set of connected viewers. Nothing else iterates it.
type Hub struct {
	clients sync.Map // viewer id -> *Client
	count   atomic.Int64
	buffer  int
	metrics *metrics.Relay
}

func NewHub(buffer int, m *metrics.Relay) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{buffer: buffer, metrics: m}
}

type Client struct {
	id   string
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *Client) ID() string {
	return c.id
}

// Done is closed once the client is unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Attach greets conn and adds it to the registry. The welcome is written
// before the viewer can receive any broadcast.
func (h *Hub) Attach(conn Conn) (*Client, error) {
	welcome, err := encode(comm.TypeSystem, comm.SystemMessage{Message: WelcomeText})
	if err != nil {
		return nil, err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}
	h.clients.Store(c.id, c)
	h.metrics.SetViewers(int(h.count.Add(1)))
	log.Infof("viewer %s connected", c.id)

	go h.writePump(c)
	return c, nil
}

// Detach removes c from the registry and closes its connection. It is safe
// to call more than once.
func (h *Hub) Detach(c *Client) {
	if _, loaded := h.clients.LoadAndDelete(c.id); loaded {
		h.metrics.SetViewers(int(h.count.Add(-1)))
		log.Infof("viewer %s disconnected", c.id)
	}
	c.close()
}

func (h *Hub) Count() int {
	return int(h.count.Load())
}

// Broadcast sends one message to every viewer without blocking and returns
// how many accepted it. Viewers that are closed or too slow are dropped.
func (h *Hub) Broadcast(msgType string, payload any) int {
	data, err := encode(msgType, payload)
	if err != nil {
		log.Errorf("Error encoding %s broadcast: %v", msgType, err)
		return 0
	}

	delivered := 0
	h.clients.Range(func(_, value any) bool {
		c := value.(*Client)
		if c.enqueue(data) {
			delivered++
		} else {
			log.Warnf("dropping viewer %s: send buffer full or closed", c.id)
			h.Detach(c)
		}
		return true
	})
	h.metrics.IncNotification(msgType)
	return delivered
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.clients.Range(func(_, value any) bool {
		h.Detach(value.(*Client))
		return true
	})
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.Detach(c)
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debugf("write to viewer %s failed: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func encode(msgType string, payload any) ([]byte, error) {
	msg, err := comm.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}
