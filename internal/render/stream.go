package render

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Upgrader upgrades map stream requests. Origins are checked by the CORS
// layer in front of it.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream writes every command from cmds to conn as a JSON text message
// until cmds is closed, ctx is done or the peer goes away. Incoming
// messages are read and discarded so pongs and close frames are handled.
func Stream(ctx context.Context, conn *websocket.Conn, cmds <-chan Command, log *logrus.Entry) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(err).Debug("stream reader closed")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	closeWith := func() error {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return closeWith()
		case <-done:
			return nil
		case cmd, ok := <-cmds:
			if !ok {
				return closeWith()
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(cmd); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// Hub is a Widget that fans commands out to every subscribed channel.
type Hub struct {
	encoder
	mu   sync.RWMutex
	subs map[uuid.UUID]*Channel
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	h := &Hub{subs: make(map[uuid.UUID]*Channel)}
	h.encoder = encoder{emit: h.broadcast}
	return h
}

func (h *Hub) broadcast(cmd Command) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.subs {
		c.send(cmd)
	}
}

// Subscribe adds a channel of the given buffer size. The returned func
// removes and closes it.
func (h *Hub) Subscribe(size int) (*Channel, func()) {
	id := uuid.New()
	c := NewChannel(size)

	h.mu.Lock()
	h.subs[id] = c
	h.mu.Unlock()

	return c, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		c.Close()
	}
}

// Subscribers returns the number of attached channels.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscribed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.subs {
		c.Close()
		delete(h.subs, id)
	}
}
