// Package notify is the side channel for transient user-facing notices
// ("toasts"). Each browser session has one bounded queue and at most one
// live subscriber; a new subscriber replaces the old one.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Level is the severity a notice is rendered with.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notice is a single transient message for the user.
type Notice struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier is what services depend on to surface messages.
type Notifier interface {
	Notify(ctx context.Context, level Level, msg string)
}

// KeyFunc resolves the session a notice belongs to.
type KeyFunc func(ctx context.Context) string

const DefaultCapacity = 20

type queue struct {
	pending []Notice
	sub     chan Notice
}

// Hub holds one queue per session.
type Hub struct {
	mu       sync.Mutex
	queues   map[string]*queue
	keyFn    KeyFunc
	capacity int
	now      func() time.Time
}

func NewHub(keyFn KeyFunc, capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		queues:   make(map[string]*queue),
		keyFn:    keyFn,
		capacity: capacity,
		now:      time.Now,
	}
}

// Notify routes a notice to the session in ctx. Notices without a session
// are dropped.
func (h *Hub) Notify(ctx context.Context, level Level, msg string) {
	key := h.keyFn(ctx)
	if key == "" {
		return
	}
	h.Push(key, Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   msg,
		CreatedAt: h.now(),
	})
}

// Push enqueues n for key. A live subscriber receives it directly; otherwise
// it waits in the pending queue, which drops the oldest entry when full.
// A subscriber whose buffer is full is detached: it still drains what it
// already holds, and the next Subscribe picks up the rest in order.
func (h *Hub) Push(key string, n Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q := h.queue(key)
	if q.sub != nil {
		select {
		case q.sub <- n:
			return
		default:
			close(q.sub)
			q.sub = nil
		}
	}
	if len(q.pending) >= h.capacity {
		q.pending = q.pending[1:]
	}
	q.pending = append(q.pending, n)
}

// Drain returns and clears the pending notices for key.
func (h *Hub) Drain(key string) []Notice {
	h.mu.Lock()
	defer h.mu.Unlock()

	q, ok := h.queues[key]
	if !ok || len(q.pending) == 0 {
		return []Notice{}
	}
	out := q.pending
	q.pending = nil
	return out
}

// Subscribe attaches the single consumer for key. Pending notices are
// handed over first. The returned cancel func detaches the subscriber.
func (h *Hub) Subscribe(key string) (<-chan Notice, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q := h.queue(key)
	if q.sub != nil {
		close(q.sub)
	}
	ch := make(chan Notice, h.capacity)
	for _, n := range q.pending {
		ch <- n
	}
	q.pending = nil
	q.sub = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur, ok := h.queues[key]; ok && cur.sub == ch {
			close(ch)
			cur.sub = nil
		}
	}
	return ch, cancel
}

// Forget discards everything held for key, e.g. on logout.
func (h *Hub) Forget(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if q, ok := h.queues[key]; ok {
		if q.sub != nil {
			close(q.sub)
		}
		delete(h.queues, key)
	}
}

func (h *Hub) queue(key string) *queue {
	q, ok := h.queues[key]
	if !ok {
		q = &queue{}
		h.queues[key] = q
	}
	return q
}

// -- HTTP --

type Handler struct {
	hub   *Hub
	keyFn KeyFunc
}

func NewHandler(hub *Hub, keyFn KeyFunc) *Handler {
	return &Handler{hub: hub, keyFn: keyFn}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notices", h.List)
	api.GET("/notices/stream", h.Stream)
}

// List drains the caller's pending notices.
func (h *Handler) List(c echo.Context) error {
	key := h.keyFn(c.Request().Context())
	if key == "" {
		return c.JSON(http.StatusOK, []Notice{})
	}
	return c.JSON(http.StatusOK, h.hub.Drain(key))
}

// Stream pushes notices as server-sent events until the client goes away.
func (h *Handler) Stream(c echo.Context) error {
	ctx := c.Request().Context()
	key := h.keyFn(ctx)
	if key == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}

	ch, cancel := h.hub.Subscribe(key)
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				// replaced by a newer subscriber, or detached after
				// falling behind; the browser reconnects for the rest
				return nil
			}
			b, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(res, "event: notice\ndata: %s\n\n", b); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
