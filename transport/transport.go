// Package transport is the connection endpoint: it upgrades inbound
// requests to websockets, translates wire messages into controller events
// and back, and fans controller output out to every connection attached to
// a session — following the teacher's register/unregister/readPump/
// writePump hub design, generalized from one global server to one hub per
// session.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lab1702/typingserver/auth"
	"github.com/lab1702/typingserver/controller"
	"github.com/lab1702/typingserver/events"
	"github.com/lab1702/typingserver/fanout"
	"github.com/lab1702/typingserver/metrics"
	"github.com/lab1702/typingserver/models"
	"github.com/lab1702/typingserver/repository"
	"github.com/lab1702/typingserver/words"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// inboundMessage is the wire shape of a client-originated message.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is a single connected websocket, registered with exactly one
// session's Hub.
type Client struct {
	player *models.Player
	conn   *websocket.Conn
	send   chan events.Wire
	hub    *Hub
}

// Hub fans events out to every client attached to one session. A session's
// Hub owns the single Redis subscription backing spec.md's "all" group, so
// events published from any process reach every local client exactly once.
type Hub struct {
	sessionID uuid.UUID
	mu        sync.RWMutex
	clients   map[uuid.UUID]*Client // keyed by player id

	register   chan *Client
	unregister chan *Client

	sub    *fanout.Subscription
	logger zerolog.Logger
}

func newHub(sessionID uuid.UUID, sub *fanout.Subscription, logger zerolog.Logger) *Hub {
	h := &Hub{
		sessionID:  sessionID,
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sub:        sub,
		logger:     logger.With().Str("session_id", sessionID.String()).Logger(),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c, ok := <-h.register:
			if !ok {
				return
			}
			h.mu.Lock()
			h.clients[c.player.ID] = c
			h.mu.Unlock()
			metrics.ConnectedPlayers.Inc()

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[c.player.ID]; ok && cur == c {
				delete(h.clients, c.player.ID)
				close(c.send)
				metrics.ConnectedPlayers.Dec()
			}
			h.mu.Unlock()

		case msg, ok := <-h.sub.Messages():
			if !ok {
				return
			}
			var wire events.Wire
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				h.logger.Warn().Err(err).Msg("failed to decode fan-out payload")
				continue
			}
			h.broadcastLocal(wire)
		}
	}
}

func (h *Hub) broadcastLocal(wire events.Wire) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- wire:
		default:
			h.logger.Warn().Str("player_id", c.player.ID.String()).Msg("client send buffer full, dropping message")
		}
	}
}

func (h *Hub) sendToPlayer(playerID uuid.UUID, wire events.Wire) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[playerID]; ok {
		select {
		case c.send <- wire:
		default:
			h.logger.Warn().Str("player_id", playerID.String()).Msg("client send buffer full, dropping message")
		}
	}
}

// Endpoint wires together everything a session's websocket handler needs:
// the controller registry, the persistence layer, the word source new
// controllers are built against, the fan-out bus, and credential
// verification.
type Endpoint struct {
	registry   *controller.Registry
	repo       repository.Repository
	wordSource words.Source
	bus        *fanout.Bus
	jwt        *auth.JWTService
	logger     zerolog.Logger

	mu       sync.Mutex
	hubs     map[uuid.UUID]*Hub
	hostSubs map[uuid.UUID]context.CancelFunc
}

// NewEndpoint builds a connection endpoint. clock defaults to time.Now
// inside each controller.NewController call.
func NewEndpoint(registry *controller.Registry, repo repository.Repository, wordSource words.Source, bus *fanout.Bus, jwt *auth.JWTService, logger zerolog.Logger) *Endpoint {
	return &Endpoint{
		registry:   registry,
		repo:       repo,
		wordSource: wordSource,
		bus:        bus,
		jwt:        jwt,
		logger:     logger.With().Str("component", "transport").Logger(),
		hubs:       make(map[uuid.UUID]*Hub),
		hostSubs:   make(map[uuid.UUID]context.CancelFunc),
	}
}

func (e *Endpoint) hubFor(ctx context.Context, sessionID uuid.UUID) *Hub {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.hubs[sessionID]; ok {
		return h
	}
	sub := e.bus.Subscribe(ctx, sessionID, fanout.GroupAll)
	h := newHub(sessionID, sub, e.logger)
	e.hubs[sessionID] = h
	return h
}

// setSessionHost nominates hostID as sessionID's tick relay: it cancels
// whatever host subscription previously ran for this session and starts a
// fresh one subscribed to the hosts group, translating each tick it
// receives into a TRIGGER_TICK player event attributed to the host. The
// subscription is deliberately rooted in context.Background rather than
// the triggering connection's request context — it must keep running
// after that one connection's request ends, for as long as this host
// holds the role or until a later host change cancels it.
func (e *Endpoint) setSessionHost(sessionID uuid.UUID, c *controller.Controller, hub *Hub, hostID uuid.UUID) {
	e.mu.Lock()
	if cancel, ok := e.hostSubs[sessionID]; ok {
		cancel()
	}
	hostCtx, cancel := context.WithCancel(context.Background())
	e.hostSubs[sessionID] = cancel
	e.mu.Unlock()

	sub := e.bus.Subscribe(hostCtx, sessionID, fanout.GroupHosts)
	go e.runHostTickLoop(hostCtx, sub, c, sessionID, hub, hostID)
}

// clearSessionHost stops relaying ticks for sessionID, used when a session
// loses its last host-eligible connection.
func (e *Endpoint) clearSessionHost(sessionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.hostSubs[sessionID]; ok {
		cancel()
		delete(e.hostSubs, sessionID)
	}
}

// runHostTickLoop drains the session's hosts-group channel for as long as
// ctx is live, feeding every signal into the controller as a TRIGGER_TICK
// event the way the elected host's own client would.
func (e *Endpoint) runHostTickLoop(ctx context.Context, sub *fanout.Subscription, c *controller.Controller, sessionID uuid.UUID, hub *Hub, hostID uuid.UUID) {
	defer sub.Close()
	hostPlayer := &models.Player{ID: hostID}
	origin := &Client{player: hostPlayer}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Messages():
			if !ok {
				return
			}
			out, err := c.PlayerEvent(ctx, events.In{Player: hostPlayer, Type: events.TriggerTick})
			if err != nil {
				continue
			}
			e.dispatchOutbound(ctx, sessionID, c, hub, origin, out)
		}
	}
}

// HandleWebSocket upgrades the request and registers the connection with
// its session's controller and hub. The session id is a mux path variable;
// credentials come from an access token (the jwt query parameter, or the
// equivalent trailing path segment the legacy path-embedded form uses),
// an optional username for the unauthenticated case, and an optional
// password for password-protected sessions.
func (e *Endpoint) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(mux.Vars(r)["sessionID"])
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	token := mux.Vars(r)["token"]
	if token == "" {
		token = r.URL.Query().Get("jwt")
	}
	username := r.URL.Query().Get("username")
	password := r.URL.Query().Get("password")

	identity, err := e.jwt.IdentifyConnection(token, username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	player := &models.Player{ID: identity.PlayerID, DisplayName: identity.DisplayName, Anonymous: identity.Anonymous}

	ctx := r.Context()
	c, err := e.registry.GetOrCreate(ctx, sessionID, func(ctx context.Context) (*controller.Controller, error) {
		return controller.NewController(ctx, e.repo, e.wordSource, sessionID, time.Now)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("cannot open session: %v", err), http.StatusBadRequest)
		return
	}

	joinPayload, err := json.Marshal(joinRequest{Password: password})
	if err != nil {
		http.Error(w, "invalid join request", http.StatusInternalServerError)
		e.registry.Release(sessionID)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn().Err(err).Msg("websocket upgrade failed")
		e.registry.Release(sessionID)
		return
	}

	client := &Client{
		player: player,
		conn:   conn,
		send:   make(chan events.Wire, 256),
		hub:    e.hubFor(ctx, sessionID),
	}

	out, err := c.PlayerEvent(ctx, events.In{Player: player, Type: events.PlayerJoined, Payload: joinPayload})
	if err != nil {
		e.logger.Info().Err(err).Str("player_id", player.ID.String()).Msg("join refused")
		_ = client.conn.WriteJSON(events.Wire{Type: events.Error, Data: err.Error()})
		client.conn.Close()
		e.registry.Release(sessionID)
		return
	}

	client.hub.register <- client
	e.dispatchOutbound(ctx, sessionID, c, client.hub, client, out)
	metrics.PlayerEventsTotal.WithLabelValues(events.PlayerJoined).Inc()

	if c.HostID() == nil {
		if err := c.SetHost(player); err == nil {
			e.setSessionHost(sessionID, c, client.hub, player.ID)
		}
	}

	go client.writePump()
	go e.readPump(ctx, c, sessionID, client)
}

// joinRequest is the PLAYER_JOINED payload shape, carrying the password a
// password-protected session's join check consults.
type joinRequest struct {
	Password string `json:"password"`
}

func (e *Endpoint) readPump(ctx context.Context, c *controller.Controller, sessionID uuid.UUID, client *Client) {
	defer func() {
		out, err := c.PlayerEvent(ctx, events.In{Player: client.player, Type: events.PlayerLeft})
		if err == nil {
			e.dispatchOutbound(ctx, sessionID, c, client.hub, client, out)
		}
		client.hub.unregister <- client
		client.conn.Close()
		e.registry.Release(sessionID)
	}()

	client.conn.SetReadLimit(32 * 1024)
	client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		var msg inboundMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				e.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		e.handleInbound(ctx, c, sessionID, client, msg)
	}
}

func (e *Endpoint) handleInbound(ctx context.Context, c *controller.Controller, sessionID uuid.UUID, client *Client, msg inboundMessage) {
	eventType := strings.TrimSpace(msg.Type)
	if events.ReservedTypes[eventType] {
		client.send <- events.Wire{Type: events.Error, Data: "event type not accepted from a client"}
		return
	}

	out, err := c.PlayerEvent(ctx, events.In{Player: client.player, Type: eventType, Payload: msg.Data})
	if err != nil {
		client.send <- events.Wire{Type: events.Error, Data: err.Error()}
		return
	}
	metrics.PlayerEventsTotal.WithLabelValues(eventType).Inc()
	e.dispatchOutbound(ctx, sessionID, c, client.hub, client, out)
}

// dispatchOutbound routes each controller-emitted event to its target: an
// all-target event is published to the session's Redis channel so every
// process's Hub re-broadcasts it locally; a player-target event is
// delivered directly to that player's connection if it lives in this
// process's Hub. A NEW_HOST event additionally re-nominates (or clears)
// this session's tick relay, so TRIGGER_TICK keeps following whichever
// connection the controller currently recognizes as host.
func (e *Endpoint) dispatchOutbound(ctx context.Context, sessionID uuid.UUID, c *controller.Controller, hub *Hub, origin *Client, out []events.Out) {
	for _, ev := range out {
		wire := events.Wire{Type: ev.Type, Data: ev.Data}
		switch ev.Target {
		case events.TargetAll:
			if err := e.bus.Publish(ctx, sessionID, fanout.GroupAll, wire); err != nil {
				e.logger.Warn().Err(err).Msg("failed to publish event, broadcasting locally only")
				hub.broadcastLocal(wire)
			}
		case events.TargetPlayer:
			hub.sendToPlayer(origin.player.ID, wire)
		default:
			hub.sendToPlayer(origin.player.ID, wire)
		}

		if ev.Type == events.NewHost {
			e.relayHostChange(sessionID, c, hub, ev.Data)
		}
	}
}

// relayHostChange reacts to a NEW_HOST event's payload: a host id string
// re-nominates this session's tick relay, nil clears it (no players left
// to host).
func (e *Endpoint) relayHostChange(sessionID uuid.UUID, c *controller.Controller, hub *Hub, data any) {
	idStr, ok := data.(string)
	if !ok || idStr == "" {
		e.clearSessionHost(sessionID)
		return
	}
	hostID, err := uuid.Parse(idStr)
	if err != nil {
		e.clearSessionHost(sessionID)
		return
	}
	e.setSessionHost(sessionID, c, hub, hostID)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case wire, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(wire); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
