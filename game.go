// Most Likely
//
// Players gather in a session identified by a short code. The creator picks a
// question category, waits for friends to join, then opens rounds one at a
// time. Each round shows a "who is most likely to..." question and every
// player votes for someone other than themselves. A round is scored once all
// votes are in, and the creator decides when to move on or finish.
//
// Features:
// - One WebSocket per browser tab at /ws; actions carry the session code
// - Players identified by a uuid cookie, so several tabs act as one player
// - Only the creator can start, skip, finish or cancel
// - Errors go back to the acting connection only
// - Idle sessions reaped after an optional timeout
// - /join/:code prefills the code, /join/:code/qr renders it as a QR code

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/mostlikely/internal/play"
	"github.com/Seednode/mostlikely/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	playerCookieName = "mostlikely_id"
	playerCookieAge  = 30 * 24 * time.Hour

	sendBuffer     = 32
	maxMessageSize = 4096
	qrSize         = 320
)

var ErrNotConnected = errors.New("player has no open connection")

// ClientMessage is an action sent by a browser.
type ClientMessage struct {
	Type      string `json:"type"` // "create", "join", "advance", "vote", "skip", "finish", "cancel", "status"
	Code      string `json:"code,omitempty"`
	Category  string `json:"category,omitempty"`  // create
	Name      string `json:"name,omitempty"`      // create / join
	Candidate string `json:"candidate,omitempty"` // vote
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

// Hub tracks open connections per player and implements play.Notifier on top
// of them. A player may hold several connections at once.
type Hub struct {
	cfg *Config
	svc *play.Service

	mu      sync.Mutex
	clients map[string]map[*Client]struct{}
}

func newHub(cfg *Config, bank play.Bank, prizes play.PrizeSource, opts ...session.Option) *Hub {
	h := &Hub{
		cfg:     cfg,
		clients: make(map[string]map[*Client]struct{}),
	}

	h.svc = play.NewService(session.NewRegistry(opts...), bank, prizes, h, play.Options{
		MinPlayers: cfg.minPlayers,
		SendLimit:  cfg.sendConcurrency,
		Logf: func(format string, args ...any) {
			logf(cfg, format, args...)
		},
	})

	return h
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[c.playerID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.playerID] = conns
	}
	conns[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(c)
}

// dropLocked removes c and closes its send channel, once.
func (h *Hub) dropLocked(c *Client) {
	conns := h.clients[c.playerID]
	if _, ok := conns[c]; !ok {
		return
	}

	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.playerID)
	}
	close(c.send)
}

// SendToPlayer queues msg on every connection of the player. Connections
// whose buffer is full are dropped.
func (h *Hub) SendToPlayer(_ context.Context, playerID string, msg play.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := false
	for c := range h.clients[playerID] {
		select {
		case c.send <- msg:
			delivered = true
		default:
			h.dropLocked(c)
		}
	}

	if !delivered {
		return ErrNotConnected
	}

	return nil
}

// sendTo queues msg on a single connection.
func (h *Hub) sendTo(c *Client, msg play.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.playerID][c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		h.dropLocked(c)
	}
}

// closeAll disconnects every client. Used on shutdown, since the http server
// does not track hijacked connections.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conns := range h.clients {
		for c := range conns {
			h.dropLocked(c)
			_ = c.conn.Close()
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, msg ClientMessage) {
	var err error

	switch msg.Type {
	case "create":
		_, err = h.svc.Create(ctx, msg.Category, c.playerID, msg.Name)
	case "join":
		err = h.svc.Join(ctx, msg.Code, c.playerID, msg.Name)
	case play.ActionAdvance:
		err = h.svc.Advance(ctx, msg.Code, c.playerID)
	case play.ActionVote:
		err = h.svc.Vote(ctx, msg.Code, c.playerID, msg.Candidate)
	case play.ActionSkip:
		err = h.svc.Skip(ctx, msg.Code, c.playerID)
	case play.ActionFinish:
		err = h.svc.Finish(ctx, msg.Code, c.playerID)
	case play.ActionCancel:
		err = h.svc.Cancel(ctx, msg.Code, c.playerID)
	case play.ActionStatus:
		err = h.svc.Status(ctx, msg.Code, c.playerID)
	default:
		// ignore unknown types
		return
	}

	if err != nil {
		logf(h.cfg, "GAMES: %s on %q by %s rejected: %v", msg.Type, msg.Code, c.playerID, err)
		h.sendTo(c, play.ErrorMessage(err))
	}
}

// reaperLoop ends sessions that have been idle longer than the session timeout.
func (h *Hub) reaperLoop(ctx context.Context) {
	idle := h.cfg.sessionTimeout

	ticker := time.NewTicker(max(idle/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := h.svc.Expire(ctx, now.Add(-idle)); n > 0 {
				logf(h.cfg, "GAMES: Reaped %d idle sessions", n)
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// playerIdentity returns the player id from the request cookie, or a fresh one
// together with the cookie that should be set for it.
func playerIdentity(cfg *Config, r *http.Request) (string, *http.Cookie) {
	if c, err := r.Cookie(playerCookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String(), nil
		}
	}

	id := uuid.NewString()

	return id, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(playerCookieAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

func serveWS(cfg *Config, h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID, cookie := playerIdentity(cfg, r)

		var header http.Header
		if cookie != nil {
			header = http.Header{"Set-Cookie": {cookie.String()}}
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			logf(cfg, "CONNS: Upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, sendBuffer),
			playerID: playerID,
		}

		h.register(client)
		logf(cfg, "CONNS: Player %s connected from %s", playerID, realIP(r))

		h.sendTo(client, h.svc.SessionInfo())

		go client.writePump()
		client.readPump(context.WithoutCancel(r.Context()), h)

		logf(cfg, "CONNS: Player %s disconnected", playerID)
	}
}

func (c *Client) readPump(ctx context.Context, h *Hub) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		h.dispatch(ctx, c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// serveJoinQR renders the join URL for a session code as a PNG.
func serveJoinQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, err := session.NormalizeCode(p.ByName("code"))
		if err != nil {
			http.Error(w, "invalid game code", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/join/" + code

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			reportError(errs, err)
		}
	}
}

func serveCategories(cfg *Config, h *Hub, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(h.svc.Categories()); err != nil {
			reportError(errs, err)
		}
	}
}

// registerGame sets up routes so that:
//   - $prefix/ws               → WebSocket for all sessions
//   - $prefix/join/:code       → HTML client with the code prefilled
//   - $prefix/join/:code/qr    → PNG QR code for the join URL
//   - $prefix/categories       → category catalog as JSON
func registerGame(cfg *Config, mux *httprouter.Router, h *Hub, errs chan<- error) {
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, h))
	mux.GET(cfg.prefix+"/join/:code", serveHomePage(cfg, errs))
	mux.GET(cfg.prefix+"/join/:code/qr", serveJoinQR(cfg, errs))
	mux.GET(cfg.prefix+"/categories", serveCategories(cfg, h, errs))
}
