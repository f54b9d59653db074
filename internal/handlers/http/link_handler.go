package http

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// LinkHandler is the local API surface over the link table, quality
// history, presets, file transfer, and the control toggles.
type LinkHandler struct {
	connections ports.ConnectionService
	toggles     ports.ControlToggles
	adapter     ports.AdapterProber
}

func NewLinkHandler(
	connections ports.ConnectionService,
	toggles ports.ControlToggles,
	adapter ports.AdapterProber,
) *LinkHandler {
	return &LinkHandler{
		connections: connections,
		toggles:     toggles,
		adapter:     adapter,
	}
}

func (h *LinkHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/links", h.ListLinks)
		api.GET("/links/:id", h.GetLink)
		api.POST("/links/:id/connect", h.Connect)
		api.POST("/links/:id/disconnect", h.Disconnect)
		api.GET("/links/:id/quality", h.GetQualityHistory)
		api.PUT("/links/:id/preset", h.SetPreset)
		api.PUT("/links/:id/preset/force", h.ForcePreset)
		api.PUT("/links/:id/auto-adjust", h.SetAutoAdjust)
		api.POST("/links/:id/files", h.SendFile)

		api.POST("/clipboard", h.SendClipboard)
		api.GET("/transfers", h.ListTransfers)

		api.GET("/control", h.GetControlSettings)
		api.PUT("/control", h.SetControlSettings)
		api.GET("/control/adapter", h.GetAdapter)
		api.POST("/control/adapter/reprobe", h.ReprobeAdapter)
	}
}

type linkView struct {
	RemoteID    domain.ParticipantID `json:"remote_id"`
	Role        domain.Role          `json:"role"`
	State       domain.LinkState     `json:"state"`
	Indicator   string               `json:"indicator"`
	Preset      string               `json:"preset"`
	AutoAdjust  bool                 `json:"auto_adjust"`
	CreatedAt   time.Time            `json:"created_at"`
	ConnectedAt *time.Time           `json:"connected_at,omitempty"`
}

func viewOf(snap domain.LinkSnapshot) linkView {
	v := linkView{
		RemoteID:   snap.RemoteID,
		Role:       snap.Role,
		State:      snap.State,
		Indicator:  string(snap.Indicator),
		Preset:     snap.Preset,
		AutoAdjust: snap.AutoAdjust,
		CreatedAt:  snap.CreatedAt,
	}
	if !snap.ConnectedAt.IsZero() {
		t := snap.ConnectedAt
		v.ConnectedAt = &t
	}
	return v
}

func (h *LinkHandler) ListLinks(c *gin.Context) {
	snaps := h.connections.Links(c.Request.Context())
	views := make([]linkView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, viewOf(snap))
	}
	c.JSON(http.StatusOK, gin.H{"links": views})
}

func (h *LinkHandler) GetLink(c *gin.Context) {
	remoteID := domain.ParticipantID(c.Param("id"))

	snap, err := h.connections.Link(c.Request.Context(), remoteID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": viewOf(snap)})
}

func (h *LinkHandler) Connect(c *gin.Context) {
	remoteID := domain.ParticipantID(c.Param("id"))

	if err := h.connections.Connect(c.Request.Context(), remoteID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "connecting", "remote_id": remoteID})
}

func (h *LinkHandler) Disconnect(c *gin.Context) {
	remoteID := domain.ParticipantID(c.Param("id"))

	if err := h.connections.Disconnect(c.Request.Context(), remoteID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected", "remote_id": remoteID})
}

func (h *LinkHandler) GetQualityHistory(c *gin.Context) {
	remoteID := domain.ParticipantID(c.Param("id"))

	history, err := h.connections.QualityHistory(c.Request.Context(), remoteID)
	if err != nil {
		c.Error(err)
		return
	}
	samples := make([]gin.H, 0, len(history))
	for _, m := range history {
		samples = append(samples, gin.H{
			"score":      m.Score,
			"category":   m.Category,
			"issues":     m.Issues,
			"rtt_ms":     m.Stats.RTTSec * 1000,
			"loss_rate":  m.Stats.PacketLossRate,
			"jitter_ms":  m.Stats.JitterSec * 1000,
			"bandwidth":  m.Stats.BandwidthBps,
			"sampled_at": m.SampledAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"remote_id": remoteID, "samples": samples})
}

func (h *LinkHandler) SetPreset(c *gin.Context) {
	remoteID := domain.ParticipantID(c.Param("id"))

	var req struct {
		Preset string `json:"preset" binding:"required"`
		Force  bool   `json:"force"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := domain.PresetName(req.Preset)
	var err error
	if req.Force {
		err = h.connections.ForcePreset(c.Request.Context(), remoteID, name)
	} else {
		err = h.connections.SetPreset(c.Request.Context(), remoteID, name)
	}
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preset": req.Preset, "forced": req.Force})
}

func (h *LinkHandler) ForcePreset(c *gin.Context) {
	remoteID := domain.ParticipantID(c.Param("id"))

	var req struct {
		Preset string `json:"preset" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.connections.ForcePreset(c.Request.Context(), remoteID, domain.PresetName(req.Preset)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preset": req.Preset, "forced": true})
}

func (h *LinkHandler) SetAutoAdjust(c *gin.Context) {
	remoteID := domain.ParticipantID(c.Param("id"))

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.connections.SetAutoAdjust(c.Request.Context(), remoteID, *req.Enabled); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auto_adjust": *req.Enabled})
}

func (h *LinkHandler) SendFile(c *gin.Context) {
	remoteID := domain.ParticipantID(c.Param("id"))

	var req struct {
		Name string `json:"name" binding:"required,max=255"`
		Mime string `json:"mime"`
		Data string `json:"data" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data is not valid base64"})
		return
	}

	id, err := h.connections.SendFile(c.Request.Context(), remoteID, domain.OutgoingFile{
		Name:   req.Name,
		Mime:   req.Mime,
		Size:   int64(len(content)),
		Reader: bytes.NewReader(content),
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"transfer_id": id, "size": len(content)})
}

func (h *LinkHandler) SendClipboard(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.toggles.ClipboardEnabled() {
		c.Error(domain.ErrClipboardDisabled)
		return
	}
	if err := h.connections.SendClipboard(c.Request.Context(), req.Content); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *LinkHandler) ListTransfers(c *gin.Context) {
	transfers := h.connections.ActiveTransfers(c.Request.Context())
	views := make([]gin.H, 0, len(transfers))
	for _, t := range transfers {
		views = append(views, gin.H{
			"id":             t.ID,
			"name":           t.Name,
			"from_id":        t.FromID,
			"received_bytes": t.ReceivedBytes,
			"total_bytes":    t.TotalBytes,
			"chunks":         t.Chunks,
			"started_at":     t.StartedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"transfers": views})
}

func (h *LinkHandler) GetControlSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"control_enabled":   h.toggles.ControlEnabled(),
		"clipboard_enabled": h.toggles.ClipboardEnabled(),
	})
}

func (h *LinkHandler) SetControlSettings(c *gin.Context) {
	var req struct {
		ControlEnabled   *bool `json:"control_enabled"`
		ClipboardEnabled *bool `json:"clipboard_enabled"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ControlEnabled == nil && req.ClipboardEnabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to change"})
		return
	}

	if req.ControlEnabled != nil {
		h.toggles.SetControlEnabled(*req.ControlEnabled)
	}
	if req.ClipboardEnabled != nil {
		h.toggles.SetClipboardEnabled(*req.ClipboardEnabled)
	}
	c.JSON(http.StatusOK, gin.H{
		"control_enabled":   h.toggles.ControlEnabled(),
		"clipboard_enabled": h.toggles.ClipboardEnabled(),
	})
}

func (h *LinkHandler) GetAdapter(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"adapter": h.adapter.ActiveAdapter()})
}

func (h *LinkHandler) ReprobeAdapter(c *gin.Context) {
	name, err := h.adapter.Reprobe(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"adapter": name})
}
