package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/diff"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/versions"
	"github.com/gin-gonic/gin"
)

type createVersionRequestPayload struct {
	Name      string            `json:"name"`
	Content   string            `json:"content"`
	Variables map[string]string `json:"variables"`
	Auto      bool              `json:"auto"`
}

type autoSaveRequestPayload struct {
	Content   string            `json:"content"`
	Variables map[string]string `json:"variables"`
}

type listVersionsResponsePayload struct {
	DocumentID  string                     `json:"document_id"`
	Versions    []versions.ContractVersion `json:"versions"`
	HasAutoSave bool                       `json:"has_autosave"`
	MaxManual   int                        `json:"max_manual"`
	MaxAuto     int                        `json:"max_auto"`
}

type compareResponsePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	diff.Comparison
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	ctx := c.Request.Context()
	documentID := strings.TrimSpace(c.Param("documentID"))
	list, err := h.versions.ListVersions(ctx, documentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	hasAutoSave, err := h.versions.HasAutoSave(ctx, documentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	limits := h.versions.Limits()
	c.JSON(http.StatusOK, listVersionsResponsePayload{
		DocumentID:  documentID,
		Versions:    list,
		HasAutoSave: hasAutoSave,
		MaxManual:   limits.MaxManual,
		MaxAuto:     limits.MaxAuto,
	})
}

func (h *httpHandler) handleCreateVersion(c *gin.Context) {
	var request createVersionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c)
		return
	}
	version, err := h.versions.CreateVersion(c.Request.Context(), versions.CreateVersionRequest{
		DocumentID: c.Param("documentID"),
		Name:       request.Name,
		Content:    request.Content,
		Variables:  request.Variables,
		Auto:       request.Auto,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		DocumentID: version.DocumentID,
		EventType:  RealtimeEventVersionsChanged,
		VersionIDs: []string{version.ID},
	})
	c.JSON(http.StatusCreated, version)
}

func (h *httpHandler) handleGetVersion(c *gin.Context) {
	version, err := h.versions.GetVersion(c.Request.Context(), c.Param("documentID"), c.Param("versionID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (h *httpHandler) handleDeleteVersion(c *gin.Context) {
	documentID := strings.TrimSpace(c.Param("documentID"))
	versionID := strings.TrimSpace(c.Param("versionID"))
	if err := h.versions.DeleteVersion(c.Request.Context(), documentID, versionID); err != nil {
		h.respondError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		DocumentID: documentID,
		EventType:  RealtimeEventVersionsChanged,
		VersionIDs: []string{versionID},
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRestoreVersion(c *gin.Context) {
	version, err := h.versions.GetVersion(c.Request.Context(), c.Param("documentID"), c.Param("versionID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions.RestoreVersion(version))
}

func (h *httpHandler) handleCompareVersions(c *gin.Context) {
	fromID := strings.TrimSpace(c.Query("from"))
	toID := strings.TrimSpace(c.Query("to"))
	if fromID == "" || toID == "" {
		badRequest(c)
		return
	}
	ctx := c.Request.Context()
	documentID := c.Param("documentID")
	from, err := h.versions.GetVersion(ctx, documentID, fromID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	to, err := h.versions.GetVersion(ctx, documentID, toID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, compareResponsePayload{
		From:       from.ID,
		To:         to.ID,
		Comparison: versions.CompareVersions(from, to),
	})
}

func (h *httpHandler) handleGetAutoSave(c *gin.Context) {
	version, err := h.versions.GetAutoSave(c.Request.Context(), c.Param("documentID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (h *httpHandler) handleAutoSave(c *gin.Context) {
	var request autoSaveRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c)
		return
	}
	version, err := h.versions.AutoSave(c.Request.Context(), versions.AutoSaveRequest{
		DocumentID: c.Param("documentID"),
		Content:    request.Content,
		Variables:  request.Variables,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		DocumentID: version.DocumentID,
		EventType:  RealtimeEventAutoSaveChanged,
	})
	c.JSON(http.StatusOK, version)
}

func (h *httpHandler) handleClearAutoSave(c *gin.Context) {
	documentID := strings.TrimSpace(c.Param("documentID"))
	if err := h.versions.ClearAutoSave(c.Request.Context(), documentID); err != nil {
		h.respondError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		DocumentID: documentID,
		EventType:  RealtimeEventAutoSaveChanged,
	})
	c.Status(http.StatusNoContent)
}
