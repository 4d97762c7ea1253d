/*
hub.go - WebSocket push channel for dashboards

PROTOCOL (text frames):
  server -> client:
    reload                           the ledger changed, refetch
    error;<message>                  a client command failed
  client -> server:
    reload                           run a reconciliation pass now
    transfer;<amount>;<from>;<to>    record a manual transfer

  Successful commands are answered by the broadcast reload that follows
  the state change, so every open dashboard refreshes together.

SEE ALSO:
  - handlers.go: the same commands over REST
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/coop-banker/ledger"
)

const (
	MessageReload   = "reload"
	messageTransfer = "transfer"
	messageError    = "error"

	writeWait  = 10 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Commands executes client requests received over the socket.
type Commands interface {
	Reconcile(ctx context.Context) error
	Transfer(ctx context.Context, amount decimal.Decimal, sender, receiver ledger.Username) error
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub tracks connected dashboards and fans out notifications.
type Hub struct {
	commands Commands
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*wsClient
}

func NewHub(commands Commands, logger zerolog.Logger) *Hub {
	return &Hub{
		commands: commands,
		logger:   logger.With().Str("component", "ws").Logger(),
		clients:  make(map[uuid.UUID]*wsClient),
	}
}

// ServeHTTP upgrades the connection and starts its pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	client := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.logger.Debug().Str("client", client.id.String()).Msg("connected")

	go h.writePump(client)
	go h.readPump(client)
}

// Broadcast queues msg for every client. Slow clients drop the message.
func (h *Hub) Broadcast(msg string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- []byte(msg):
		default:
			h.logger.Warn().Str("client", client.id.String()).Msg("send buffer full, dropping message")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.conn.Close()
		delete(h.clients, id)
	}
}

func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, client.id)
		h.mu.Unlock()
		close(client.done)
		client.conn.Close()
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := h.handleMessage(string(message)); err != nil {
			h.logger.Info().Err(err).Str("client", client.id.String()).Msg("command rejected")
			select {
			case client.send <- []byte(messageError + ";" + err.Error()):
			default:
			}
		}
	}
}

func (h *Hub) writePump(client *wsClient) {
	for {
		select {
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

func (h *Hub) handleMessage(message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fields := strings.Split(strings.TrimSpace(message), ";")
	switch fields[0] {
	case MessageReload:
		return h.commands.Reconcile(ctx)
	case messageTransfer:
		amount, sender, receiver, err := parseTransfer(fields)
		if err != nil {
			return err
		}
		return h.commands.Transfer(ctx, amount, sender, receiver)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func parseTransfer(fields []string) (decimal.Decimal, ledger.Username, ledger.Username, error) {
	if len(fields) != 4 {
		return decimal.Zero, "", "", fmt.Errorf("%w: expected transfer;<amount>;<from>;<to>", ledger.ErrInvalidTransfer)
	}
	amount, err := decimal.NewFromString(fields[1])
	if err != nil {
		return decimal.Zero, "", "", fmt.Errorf("%w: %q is not a number", ledger.ErrInvalidAmount, fields[1])
	}
	return amount, ledger.Username(fields[2]), ledger.Username(fields[3]), nil
}
