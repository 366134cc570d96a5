package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stanley-fork/variant-go-server/internal/entity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	sendBufferSize = 256
)

// Client is one websocket connection. Events are pushed onto its buffered
// send channel; the write pump owns the connection for writes. Pushing never
// blocks: when the buffer is full the event is dropped and the peer catches
// up on the next room status.
//
// The send channel is never closed. Teardown closes done instead, so a room
// actor that still holds the client can keep pushing; late events become
// silent drops rather than sends on a closed channel.
type Client struct {
	logger *slog.Logger
	conn   *websocket.Conn
	send   chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

func newClient(logger *slog.Logger, conn *websocket.Conn) *Client {
	return &Client{
		logger: logger,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// shutdown stops the write pump and turns further pushes into drops. Safe to
// call more than once and from any goroutine.
func (that *Client) shutdown() {
	that.doneOnce.Do(func() {
		close(that.done)
	})
}

// Push implements usecase.Pusher. Safe to call from any goroutine.
func (that *Client) Push(event entity.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		that.logger.Error("failed to marshal event", "action", event.EventName(), "error", err)
		return
	}

	message, err := json.Marshal(Message{
		Action:  event.EventName(),
		Payload: payload,
	})
	if err != nil {
		that.logger.Error("failed to marshal message", "action", event.EventName(), "error", err)
		return
	}

	select {
	case <-that.done:
		return
	default:
	}

	select {
	case that.send <- message:
	default:
		that.logger.Warn("send buffer full, dropping event", "action", event.EventName())
	}
}

// writePump drains the send channel onto the connection and keeps the peer
// alive with pings.
func (that *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = that.conn.Close()
	}()

	for {
		select {
		case <-that.done:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = that.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
