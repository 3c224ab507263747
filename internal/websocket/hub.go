package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

var ErrNoClient = errors.New("exam page is not connected")

// ReplyError is a failure the page reported for a request (a DOMException).
type ReplyError struct {
	Name    string
	Message string
}

func (e *ReplyError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ErrorName lets callers map the DOMException name without importing this package.
func (e *ReplyError) ErrorName() string { return e.Name }

// Dispatcher receives every non-reply frame the page pushes.
type Dispatcher interface {
	HandleSignal(attemptID string, env dto.Envelope)
}

type Hub struct {
	// Registered clients: AttemptID -> connections (a reload briefly overlaps two)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	pendingMu sync.Mutex
	pending   map[string]chan dto.Envelope

	dispatcher Dispatcher

	// Redis connection for cross-instance fan-out of outbound messages
	rdb        *redis.Client
	instanceID string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		pending:    make(map[string]chan dto.Envelope),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	h.dispatcher = d
	h.mu.Unlock()
}

func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.AttemptID] = append(h.clients[client.AttemptID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"attempt_id": client.AttemptID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.AttemptID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.AttemptID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.AttemptID]) == 0 {
					delete(h.clients, client.AttemptID)
					h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"attempt_id": client.AttemptID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Connected reports whether the attempt's page holds a socket on this instance.
func (h *Hub) Connected(attemptID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[attemptID]) > 0
}

func encodeEnvelope(kind, id string, payload any) ([]byte, error) {
	env := dto.Envelope{Type: kind, Id: id}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Send pushes a message to every page of the attempt, here and on other instances.
func (h *Hub) Send(attemptID, kind string, payload any) error {
	data, err := encodeEnvelope(kind, "", payload)
	if err != nil {
		return err
	}

	delivered := h.deliverLocal(attemptID, data)

	if h.rdb != nil {
		msg, _ := json.Marshal(map[string]interface{}{
			"target_attempt_id": attemptID,
			"origin":            h.instanceID,
			"message":           json.RawMessage(data),
		})
		if err := h.rdb.Publish(context.Background(), clusterChannel, msg).Err(); err != nil {
			h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
		} else {
			return nil
		}
	}

	if !delivered {
		return ErrNoClient
	}
	return nil
}

// Request sends a message and waits for the page's reply carrying the same id.
// Replies only come back on the socket that received the request, so the page must
// be connected to this instance.
func (h *Hub) Request(ctx context.Context, attemptID, kind string, payload any) (json.RawMessage, error) {
	id := uuid.NewString()
	data, err := encodeEnvelope(kind, id, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan dto.Envelope, 1)
	h.pendingMu.Lock()
	h.pending[id] = ch
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, id)
		h.pendingMu.Unlock()
	}()

	if !h.deliverLocal(attemptID, data) {
		return nil, ErrNoClient
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", kind, ctx.Err())
	case reply := <-ch:
		if reply.Error != nil {
			return nil, &ReplyError{Name: reply.Error.Name, Message: reply.Error.Message}
		}
		return reply.Data, nil
	}
}

// inbound routes one frame read from a client.
func (h *Hub) inbound(c *Client, raw []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Warn("Hub", "Dropping malformed frame", map[string]interface{}{"attempt_id": c.AttemptID, "error": err.Error()})
		return
	}

	if env.Type == dto.SignalReply {
		h.pendingMu.Lock()
		ch, ok := h.pending[env.Id]
		h.pendingMu.Unlock()
		if ok {
			select {
			case ch <- env:
			default:
			}
		}
		return
	}

	h.mu.RLock()
	d := h.dispatcher
	h.mu.RUnlock()
	if d != nil {
		d.HandleSignal(c.AttemptID, env)
	}
}

func (h *Hub) deliverLocal(attemptID string, data []byte) bool {
	h.mu.RLock()
	clients := append([]*Client(nil), h.clients[attemptID]...)
	h.mu.RUnlock()

	for _, client := range clients {
		h.push(client, data)
	}
	return len(clients) > 0
}

// push never blocks; a client whose buffer is full is dropped. Send is closed only
// under h.mu, so holding the read lock while checking registration makes the send safe.
func (h *Hub) push(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.registered(client) {
		h.logger.Debug("Hub", "Skipping push to unregistered client", map[string]interface{}{"attempt_id": client.AttemptID})
		return
	}
	select {
	case client.Send <- data:
	default:
		h.logger.Warn("Hub", "Client Send buffer full, dropping client", map[string]interface{}{"attempt_id": client.AttemptID})
		go func() { h.unregister <- client }()
	}
}

// registered is called with h.mu held.
func (h *Hub) registered(client *Client) bool {
	for _, c := range h.clients[client.AttemptID] {
		if c == client {
			return true
		}
	}
	return false
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload struct {
				TargetAttemptID string          `json:"target_attempt_id"`
				Origin          string          `json:"origin"`
				Message         json.RawMessage `json:"message"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceID {
				continue
			}
			h.deliverLocal(payload.TargetAttemptID, payload.Message)
		}
	}
}
