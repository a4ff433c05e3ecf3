package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/leaderboard"
)

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// hub fans leaderboard updates out to websocket clients.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	topic string
	send  chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

// register adds c with first queued ahead of any update.
func (h *hub) register(c *client, first []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	c.send <- first
	h.clients[c] = struct{}{}

	return true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcast sends each client the top entries of its topic. Clients that can't
// keep up are dropped.
func (h *hub) broadcast(e domain.EventLeaderboardUpdated) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := make(map[string][]byte)
	for c := range h.clients {
		if c.topic != "" && !strings.EqualFold(c.topic, e.Entry.Topic) {
			continue
		}

		key := strings.ToLower(c.topic)
		b, ok := msgs[key]
		if !ok {
			var err error
			b, err = json.Marshal(Notification{
				Event: e.Name(),
				Data:  toLeaderboard(c.topic, topOf(e.Leaderboard.Entries, c.topic, topN)),
			})
			if err != nil {
				slog.Error("api: marshal leaderboard update failed", "error", err)
				return
			}
			msgs[key] = b
		}

		select {
		case c.send <- b:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeLeaderboardWS streams the leaderboard over a websocket. The optional topic
// query parameter restricts the stream to one topic. The current top entries are
// sent on connect, then one message per leaderboard write.
func (a *API) ServeLeaderboardWS(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	cl := &client{
		topic: strings.TrimSpace(c.Query("topic")),
		send:  make(chan []byte, sendBuffer),
	}
	l := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{Topic: cl.topic, Limit: topN})
	b, err := json.Marshal(Notification{
		Event: "leaderboard.snapshot",
		Data:  toLeaderboard(l.Topic, l.Entries),
	})
	if err != nil {
		slog.ErrorContext(ctx, "api: marshal leaderboard snapshot failed", "error", err)
		return
	}
	if !a.hub.register(cl, b) {
		return
	}
	defer a.hub.unregister(cl)

	done := make(chan struct{})
	go func() {
		defer close(done)
		read(conn)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.WarnContext(ctx, "api: websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// read drains the connection so control frames are handled, until the peer goes away.
func read(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
