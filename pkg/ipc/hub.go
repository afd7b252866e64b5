package ipc

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/entrhq/scout/pkg/bridge"
	"github.com/entrhq/scout/pkg/observability"
	"github.com/entrhq/scout/pkg/types"
)

const (
	maxWSReadBytes  int64 = 256 << 10
	clientSendQueue       = 64
	wsWriteTimeout        = 15 * time.Second
)

// Client message types.
const (
	messageRunQuery = "runQuery"
	messageCancel   = "cancel"
)

// Notice types broadcast to every client.
const (
	NoticeBrowserState     = "browserState"
	NoticeWorkingDirectory = "workingDirectory"
	NoticeProtocolError    = "protocolError"
)

// Notice is a process-wide update sent to every connected client. Session
// events are sent as types.StreamEvent instead.
type Notice struct {
	Payload any    `json:"payload,omitempty"`
	Type    string `json:"type"`
}

// ProtocolError is the payload of a protocolError notice. RequestID is set
// when a runQuery was rejected; no stream event is sent for that id because
// another session may already own it.
type ProtocolError struct {
	RequestID string `json:"requestId,omitempty"`
	Message   string `json:"message"`
}

func protocolError(requestID, message string) Notice {
	return Notice{Type: NoticeProtocolError, Payload: ProtocolError{RequestID: requestID, Message: message}}
}

// clientMessage is a message received from a UI client.
type clientMessage struct {
	Type      string `json:"type"`
	Query     string `json:"query,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Hub tracks connected websocket clients.
type Hub struct {
	clients map[*client]struct{}
	mu      sync.RWMutex
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a notice to all clients. Notices are dropped for clients
// whose queue is full.
func (h *Hub) Broadcast(n Notice) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- n:
		default:
		}
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan any, clientSendQueue),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	observability.WebsocketClients.Inc()
	return c
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		observability.WebsocketClients.Dec()
	}
}

type client struct {
	conn *websocket.Conn
	send chan any
}

// push queues v, waiting for room. It reports false once ctx is done.
func (c *client) push(ctx context.Context, v any) bool {
	select {
	case c.send <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *client) writeLoop(ctx context.Context) error {
	for {
		select {
		case v := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, c.conn, v)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleWebSocket serves one UI connection. Sessions started over it are
// cancelled when it closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxWSReadBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := s.hub.register(conn)
	defer s.hub.removeClient(c)
	startWSPing(ctx, conn)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := c.writeLoop(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
		}
	}()

	s.readClient(ctx, c, &wg)
	cancel()
	wg.Wait()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) readClient(ctx context.Context, c *client, wg *sync.WaitGroup) {
	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case messageRunQuery:
			s.runQuery(ctx, c, msg, wg)
		case messageCancel:
			if err := s.deps.Sessions.Cancel(msg.RequestID); err != nil {
				s.logger.Debug("cancel ignored", zap.String("request_id", msg.RequestID), zap.Error(err))
			}
		default:
			c.push(ctx, protocolError("", "unknown message type "+strconv.Quote(msg.Type)))
		}
	}
}

// runQuery subscribes to the request before starting it so the client sees
// every event from the start event on. A rejected request is reported as a
// protocolError notice.
func (s *Server) runQuery(ctx context.Context, c *client, msg clientMessage, wg *sync.WaitGroup) {
	req := types.RunRequest{Query: msg.Query, RequestID: msg.RequestID}
	if err := req.Normalize(); err != nil {
		c.push(ctx, protocolError(req.RequestID, err.Error()))
		return
	}

	sub := s.deps.Bridge.Subscribe(req.RequestID)
	if err := s.deps.Sessions.Start(ctx, req.Query, req.RequestID); err != nil {
		sub.Close()
		c.push(ctx, protocolError(req.RequestID, err.Error()))
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.forward(ctx, c, sub)
	}()
}

func (s *Server) forward(ctx context.Context, c *client, sub *bridge.Subscription) {
	defer sub.Close()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !c.push(ctx, ev) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, origin := range s.cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			opts.InsecureSkipVerify = true
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}
