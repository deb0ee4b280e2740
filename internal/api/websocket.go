package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/macro-autopilot/internal/infrastructure/config"
	"github.com/nerrad567/macro-autopilot/internal/infrastructure/logging"
	"github.com/nerrad567/macro-autopilot/internal/infrastructure/mqtt"
	"github.com/nerrad567/macro-autopilot/internal/macro"
)

// WebSocket message types.
const (
	WSTypeHello       = "hello"
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// ChannelRemoteEvent carries macro events relayed from other vessels.
	ChannelRemoteEvent = "macro.remote_event"
)

// hubChannels lists the channels a client may subscribe to.
var hubChannels = []string{macro.ChannelActivated, macro.ChannelStatus, ChannelRemoteEvent}

// WSMessage is a message sent to a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a message received from a client. The payload is decoded
// according to the type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
// Vessels narrows events to the listed vessel IDs; when no vessel has been
// subscribed, events from every vessel are delivered.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Vessels  []string `json:"vessels,omitempty"`
}

// Hub fans engine events out to WebSocket clients.
//
// It satisfies macro.WSHub; the engine broadcasts on macro.ChannelActivated
// and macro.ChannelStatus, and the server relays other vessels' events on
// ChannelRemoteEvent.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected console.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	vessels       map[string]struct{}
	closed        bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client and closes its send channel. Repeated calls
// are no-ops.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client subscribed to channel and, when
// the payload names a vessel, to the clients following that vessel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}
	vesselID := payloadVessel(payload)

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent, dropped := 0, 0
	for _, c := range clients {
		if !c.wants(channel, vesselID) {
			continue
		}
		if c.trySend(data) {
			sent++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket clients lagging, event dropped",
			"channel", channel, "vessel_id", vesselID, "dropped", dropped)
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "vessel_id", vesselID, "recipients", sent)
	}
}

func payloadVessel(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["vessel_id"].(string)
	return id
}

// subscribeMacroEvents relays macro engine events published by other
// macropilot instances to WebSocket clients subscribed to ChannelRemoteEvent.
// Events from the local engine are skipped; it broadcasts them directly.
func (s *Server) subscribeMacroEvents() error {
	if s.mqtt == nil {
		return nil // MQTT not configured; remote relay disabled
	}
	topic := mqtt.Topics{}.AllMacroEvents()
	s.logger.Info("subscribing to macro events for WebSocket relay", "topic", topic)
	return s.mqtt.Subscribe(topic, 1, s.relayMacroEvent)
}

// relayMacroEvent handles one message on macropilot/macro/{vessel_id}/{event}.
func (s *Server) relayMacroEvent(topic string, payload []byte) error {
	if s.hub == nil {
		return nil // Hub not yet initialised
	}

	vesselID, event, ok := parseMacroEventTopic(topic)
	if !ok {
		s.logger.Debug("ignoring malformed macro event topic", "topic", topic)
		return nil
	}
	if vesselID == s.engine.VesselID() {
		return nil
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		s.logger.Warn("failed to parse macro event for WebSocket relay", "topic", topic, "error", err)
		return nil
	}

	s.hub.Broadcast(ChannelRemoteEvent, map[string]any{
		"vessel_id": vesselID,
		"event":     event,
		"payload":   body,
	})
	return nil
}

// parseMacroEventTopic splits macropilot/macro/{vessel_id}/{event}.
func parseMacroEventTopic(topic string) (vesselID, event string, ok bool) {
	rest, found := strings.CutPrefix(topic, mqtt.TopicPrefix+"/macro/")
	if !found {
		return "", "", false
	}
	vesselID, event, found = strings.Cut(rest, "/")
	if !found || vesselID == "" || event == "" || strings.Contains(event, "/") {
		return "", "", false
	}
	return vesselID, event, true
}

// handleWebSocket upgrades the connection, greets the client with the
// vessel ID and available channels, and starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err, "request_id", tagFrom(r.Context()).ID)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(c)
	c.sendResponse("", WSTypeHello, map[string]any{
		"vessel_id": s.engine.VesselID(),
		"channels":  hubChannels,
	})

	go c.writePump(s.wsCfg)
	go c.readPump(s.wsCfg)
}

// readPump handles client requests until the connection fails. Any message
// extends the read deadline, as does a pong.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = extend()
		c.handleMessage(data)
	}
}

// writePump drains the send channel and pings on an interval. It exits
// when the hub closes the channel or a write fails.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one client request.
func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(req)
	case WSTypePing:
		c.sendResponse(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

// handleSubscription adds or removes channels and vessel filters. A request
// naming any unknown channel changes nothing.
func (c *WSClient) handleSubscription(req wsRequest) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &sub); err != nil || len(sub.Channels) == 0 {
		c.sendError(req.ID, "payload must list channels")
		return
	}
	var unknown []string
	for _, ch := range sub.Channels {
		if !slices.Contains(hubChannels, ch) {
			unknown = append(unknown, ch)
		}
	}
	if len(unknown) > 0 {
		c.sendError(req.ID, "unknown channel: "+strings.Join(unknown, ", "))
		return
	}

	subscribe := req.Type == WSTypeSubscribe
	c.mu.Lock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]struct{})
	}
	if c.vessels == nil {
		c.vessels = make(map[string]struct{})
	}
	for _, ch := range sub.Channels {
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	for _, v := range sub.Vessels {
		if subscribe {
			c.vessels[v] = struct{}{}
		} else {
			delete(c.vessels, v)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
	}
	c.hub.logger.Debug("websocket subscriptions changed", key, sub.Channels, "vessels", sub.Vessels)
	resp := map[string]any{key: sub.Channels}
	if len(sub.Vessels) > 0 {
		resp["vessels"] = sub.Vessels
	}
	c.sendResponse(req.ID, WSTypeResponse, resp)
}

// wants reports whether an event on channel about vesselID should reach
// this client.
func (c *WSClient) wants(channel, vesselID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[channel]; !ok {
		return false
	}
	if len(c.vessels) == 0 || vesselID == "" {
		return true
	}
	_, ok := c.vessels[vesselID]
	return ok
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// trySend queues data without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *WSClient) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the client closed and closes its send channel once.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
