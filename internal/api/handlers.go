package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Conceptual-Machines/jamctl/internal/broadcast"
	"github.com/Conceptual-Machines/jamctl/internal/jam"
	"github.com/Conceptual-Machines/jamctl/internal/logger"
	"github.com/Conceptual-Machines/jamctl/internal/orchestrator"
)

// handler wires the broadcast stream and the command surface to one
// orchestrator. There is exactly one jam session per process, so the
// handler needs no session-id routing.
type handler struct {
	hub     *broadcast.Hub
	orch    *orchestrator.Orchestrator
	version string
}

func newHandler(hub *broadcast.Hub, orch *orchestrator.Orchestrator, version string) *handler {
	return &handler{hub: hub, orch: orch, version: version}
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamEvents upgrades to a websocket and forwards every broadcast.Event
// to the client as JSON. The connection is read-only from the
// client's side; any inbound frame is discarded, it only exists so the
// client's close/ping frames surface a clean disconnect.
func (h *handler) streamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("api: websocket upgrade failed", logger.Fields{"error": err.Error()})
		return
	}
	defer conn.Close()

	id, events := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	go drainInbound(conn)

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// drainInbound discards client frames until the connection errors or
// closes, then closes the connection, so the event loop above ends at its
// next failed write.
func drainInbound(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return
		}
	}
}

type startRequest struct {
	ActiveAgents []string `json:"active_agents"`
	Mode         string   `json:"mode"`
}

func (h *handler) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	active := make([]jam.AgentID, 0, len(req.ActiveAgents))
	for _, a := range req.ActiveAgents {
		id, ok := parseAgentID(a)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown agent: " + a})
			return
		}
		active = append(active, id)
	}

	sessionID, err := h.orch.Start(active, jam.JamStartMode(req.Mode))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID})
}

func (h *handler) stop(c *gin.Context) {
	h.orch.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

type presetRequest struct {
	PresetID string `json:"preset_id"`
}

func (h *handler) setPreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := jam.Presets[req.PresetID]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown preset: " + req.PresetID})
		return
	}
	if err := h.orch.SetJamPreset(req.PresetID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type directiveRequest struct {
	Text        string `json:"text"`
	TargetAgent string `json:"target_agent"`
}

func (h *handler) handleDirective(c *gin.Context) {
	var req directiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var target *jam.AgentID
	if req.TargetAgent != "" {
		id, ok := parseAgentID(req.TargetAgent)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown agent: " + req.TargetAgent})
			return
		}
		target = &id
	}

	if err := h.orch.HandleDirective(req.Text, target); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type cameraDirectiveRequest struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (h *handler) handleCameraDirective(c *gin.Context) {
	var req cameraDirectiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orch.HandleCameraDirective(jam.CameraDirective{Text: req.Text, Confidence: req.Confidence}); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type audioFeedbackRequest struct {
	Summary string `json:"summary"`
}

func (h *handler) handleAudioFeedback(c *gin.Context) {
	var req audioFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.orch.HandleAudioFeedback(req.Summary)
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

func (h *handler) getState(c *gin.Context) {
	snap, err := h.orch.GetJamStateSnapshot()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func parseAgentID(s string) (jam.AgentID, bool) {
	id := jam.AgentID(s)
	if _, ok := jam.Meta(id); !ok {
		return "", false
	}
	return id, true
}
