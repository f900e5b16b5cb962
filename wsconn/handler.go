package wsconn

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/bjaus/socketdispatch"
)

// Option configures Handler.
type Option func(*handler)

type handler struct {
	d         *socketdispatch.Dispatcher
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	readLimit int64
}

// WithLogger sets the logger of accepted connections.
func WithLogger(l *slog.Logger) Option {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCheckOrigin sets the origin check of the upgrade. The default accepts
// same-origin requests only.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// WithReadLimit caps the size of incoming frames in bytes.
func WithReadLimit(n int64) Option {
	return func(h *handler) {
		h.readLimit = n
	}
}

// Handler upgrades requests to websockets and serves each connection through
// d until it closes.
func Handler(d *socketdispatch.Dispatcher, opts ...Option) http.Handler {
	h := &handler{
		d:         d,
		logger:    slog.Default(),
		readLimit: 1 << 20,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.DebugContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	c := New(ws, h.logger)
	ctx := r.Context()
	log := h.logger.With(slog.String("conn_id", c.ID()))

	if err := h.d.HandleConnection(ctx, c); err != nil {
		log.ErrorContext(ctx, "failed to bind connection", slog.Any("error", err))
		_ = c.Close()
		return
	}
	defer h.d.Forget(c)

	log.InfoContext(ctx, "socket connected", slog.String("remote_addr", r.RemoteAddr))
	if err := c.Serve(ctx); err != nil {
		log.WarnContext(ctx, "socket closed with error", slog.Any("error", err))
		return
	}
	log.InfoContext(ctx, "socket disconnected")
}
