package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stanley-fork/variant-go-server/internal/entity"
	"github.com/stanley-fork/variant-go-server/internal/usecase"
)

var errUnknownIntent = errors.New("unknown intent")

type gameCoordinator interface {
	Connect(client usecase.Pusher) uint64
	Disconnect(sessionID uint64)
	Identify(sessionID uint64, token, nick string) (*entity.Profile, error)
	CreateRoom(sessionID uint64, name string) uint32
	JoinRoom(sessionID uint64, roomID uint32)
	ListRooms() []entity.RoomInfo
	GameAction(sessionID uint64, roomID uint32, action entity.Action)
}

type Server struct {
	logger      *slog.Logger
	coordinator gameCoordinator
	upgrader    websocket.Upgrader
}

func New(logger *slog.Logger, coordinator gameCoordinator) *Server {
	return &Server{
		logger:      logger.With("component", "websocket"),
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

// Start - starts the websocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 90 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) serveConnection(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveConnection")

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(that.logger, conn)
	sessionID := that.coordinator.Connect(client)

	log.Info("websocket connection established", "sessionID", sessionID)

	go client.writePump()
	that.readPump(client, sessionID)
}

// readPump reads client intents until the connection dies, then tears the
// session down.
func (that *Server) readPump(client *Client, sessionID uint64) {
	log := that.logger.With("method", "readPump", "sessionID", sessionID)

	defer func() {
		that.coordinator.Disconnect(sessionID)
		client.shutdown()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("websocket read error", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(raw, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		if err = that.dispatch(client, sessionID, &message); err != nil {
			log.Error("failed to process message", "action", message.Action, "error", err)
		}
	}
}

func (that *Server) dispatch(client *Client, sessionID uint64, message *Message) error {
	switch message.Action {
	case "identify":
		var payload identifyPayload
		if err := json.Unmarshal(message.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal identify payload: %w", err)
		}

		if _, err := that.coordinator.Identify(sessionID, payload.Token, payload.Nick); err != nil {
			return fmt.Errorf("failed to identify session: %w", err)
		}

		return nil
	case "room:create":
		var payload createRoomPayload
		if err := json.Unmarshal(message.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal create payload: %w", err)
		}

		that.coordinator.CreateRoom(sessionID, payload.Name)

		return nil
	case "room:join":
		var payload joinRoomPayload
		if err := json.Unmarshal(message.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal join payload: %w", err)
		}

		that.coordinator.JoinRoom(sessionID, payload.RoomID)

		return nil
	case "room:list":
		client.Push(entity.RoomListEvent{Rooms: that.coordinator.ListRooms()})

		return nil
	case "game:action":
		var payload gameActionPayload
		if err := json.Unmarshal(message.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal action payload: %w", err)
		}

		that.coordinator.GameAction(sessionID, payload.RoomID, payload.Action)

		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownIntent, message.Action)
	}
}
