package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jogardn/order-dashboard/internal/dashboard"
	"github.com/sirupsen/logrus"
)

const (
	MessageViewState     = "view_state"
	MessageError         = "error"
	MessageOrdersChanged = "orders_changed"
	MessageOrder         = "order"

	messageSource = "dashboard"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
	Source    string      `json:"source"`
}

type ErrorData struct {
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

func newMessage(messageType string, data interface{}) Message {
	return Message{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
		Source:    messageSource,
	}
}

// Hub tracks the live dashboard sessions. Every websocket connection is one
// session with its own view controller.
type Hub struct {
	api        dashboard.API
	audit      dashboard.AuditPublisher
	validator  *commandValidator
	sessions   map[*Session]bool
	broadcast  chan Message
	register   chan *Session
	unregister chan *Session
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

func NewHub(api dashboard.API, logger *logrus.Logger) *Hub {
	return &Hub{
		api:        api,
		validator:  newCommandValidator(),
		sessions:   make(map[*Session]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// SetAuditPublisher must be called before Run.
func (h *Hub) SetAuditPublisher(audit dashboard.AuditPublisher) {
	h.audit = audit
}

// Run serves register, unregister and broadcast requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case session := <-h.register:
			h.mutex.Lock()
			h.sessions[session] = true
			count := len(h.sessions)
			h.mutex.Unlock()
			h.logger.WithFields(logrus.Fields{
				"session_id":    session.id,
				"session_count": count,
			}).Info("Dashboard session opened")

		case session := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.sessions[session]; ok {
				delete(h.sessions, session)
				session.close()
			}
			count := len(h.sessions)
			h.mutex.Unlock()
			h.logger.WithFields(logrus.Fields{
				"session_id":    session.id,
				"session_count": count,
			}).Info("Dashboard session closed")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for session := range h.sessions {
				if !session.push(message) {
					delete(h.sessions, session)
					session.close()
				}
			}
			h.mutex.Unlock()

		case <-ctx.Done():
			h.mutex.Lock()
			for session := range h.sessions {
				delete(h.sessions, session)
				session.close()
			}
			h.mutex.Unlock()
			return
		}
	}
}

func (h *Hub) Broadcast(messageType string, data interface{}) {
	select {
	case h.broadcast <- newMessage(messageType, data):
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

// RefreshAll tells every session that orders changed and reloads each view.
func (h *Hub) RefreshAll(ctx context.Context) error {
	h.Broadcast(MessageOrdersChanged, nil)

	h.mutex.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.mutex.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, session := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.controller.Refresh(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(session)
	}
	wg.Wait()

	h.logger.WithFields(logrus.Fields{
		"session_count": len(sessions),
		"failed":        len(errs),
	}).Info("Refreshed dashboard sessions")
	return errors.Join(errs...)
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &Session{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan Message, 256),
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		logger: h.logger,
	}
	session.controller = dashboard.NewController(h.api, session.id, h.logger)
	if h.audit != nil {
		session.controller.SetAuditPublisher(h.audit)
	}
	session.controller.Observe(dashboard.ObserverFunc(func(state dashboard.ViewState) {
		session.push(newMessage(MessageViewState, dashboard.Render(state)))
	}))

	select {
	case h.register <- session:
	case <-h.done:
		cancel()
		conn.Close()
		return
	}

	go session.writePump()
	go session.readPump()
}

func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions)
}

type Session struct {
	id         string
	conn       *websocket.Conn
	controller *dashboard.Controller
	hub        *Hub
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *logrus.Logger

	sendMutex sync.Mutex
	send      chan Message
	closed    bool
}

// push queues a message for the browser. It reports false if the session is
// closed or too slow to keep up.
func (s *Session) push(message Message) bool {
	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- message:
		return true
	default:
		s.logger.WithField("session_id", s.id).Warn("Session send buffer full, dropping message")
		return false
	}
}

func (s *Session) close() {
	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.cancel()
}

func (s *Session) readPump() {
	defer func() {
		s.cancel()
		s.controller.Close()
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := s.controller.Mount(s.ctx); err != nil {
		s.pushError("", err)
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).WithField("session_id", s.id).Error("WebSocket error")
			}
			break
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.pushError("", err)
			continue
		}
		s.handle(&cmd)
	}
}

func (s *Session) handle(cmd *Command) {
	log := s.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"command":    cmd.Type,
	})

	if err := s.hub.validator.check(cmd); err != nil {
		log.WithError(err).Warn("Rejected dashboard command")
		s.pushError(cmd.Type, err)
		return
	}

	log.Debug("Dashboard command received")
	reply, err := dispatch(s.ctx, s.controller, cmd)
	if err != nil {
		s.pushError(cmd.Type, err)
		return
	}
	if reply != nil {
		s.push(newMessage(MessageOrder, reply))
	}
}

func (s *Session) pushError(command string, err error) {
	s.push(newMessage(MessageError, ErrorData{Command: command, Error: err.Error()}))
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteJSON(message); err != nil {
				s.logger.WithError(err).WithField("session_id", s.id).Error("Failed to write WebSocket message")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
