package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/audit"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/certificate"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signatures"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const markdownContentType = "text/markdown; charset=utf-8"

type signRequestPayload struct {
	Content       string `json:"content"`
	DocumentID    string `json:"document_id"`
	DocumentName  string `json:"document_name"`
	SignatureType string `json:"signature_type"`
}

type verifyRequestPayload struct {
	Content *string `json:"content"`
}

type verifyResponsePayload struct {
	SignatureID string `json:"signature_id"`
	Verified    bool   `json:"verified"`
	Recomputed  bool   `json:"recomputed"`
}

type revokeRequestPayload struct {
	Reason string `json:"reason"`
}

func (h *httpHandler) handleSign(c *gin.Context) {
	var request signRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c)
		return
	}
	signer := currentSigner(c)
	record, err := h.ledger.Sign(c.Request.Context(), signatures.SignRequest{
		Content:       request.Content,
		DocumentID:    request.DocumentID,
		DocumentName:  request.DocumentName,
		SignedBy:      signer.SignerID,
		SignatureType: signatures.SignatureType(request.SignatureType),
		Origin:        c.ClientIP(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		DocumentID:  record.DocumentID,
		EventType:   RealtimeEventSignatureSigned,
		SignatureID: record.ID,
	})
	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) handleGetSignature(c *gin.Context) {
	record, err := h.ledger.Get(c.Request.Context(), c.Param("signatureID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleVerify(c *gin.Context) {
	var request verifyRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c)
		return
	}
	ctx := c.Request.Context()
	record, err := h.ledger.Get(ctx, c.Param("signatureID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	verified, err := h.ledger.Verify(ctx, signatures.VerifyRequest{
		SignatureID: record.ID,
		Content:     request.Content,
		Actor:       currentSigner(c).SignerID,
		Origin:      c.ClientIP(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if request.Content != nil {
		h.realtime.Publish(RealtimeMessage{
			DocumentID:  record.DocumentID,
			EventType:   RealtimeEventSignatureVerified,
			SignatureID: record.ID,
			Verified:    &verified,
		})
	}
	c.JSON(http.StatusOK, verifyResponsePayload{
		SignatureID: record.ID,
		Verified:    verified,
		Recomputed:  request.Content != nil,
	})
}

func (h *httpHandler) handleRevoke(c *gin.Context) {
	var request revokeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c)
		return
	}
	ctx := c.Request.Context()
	signatureID := c.Param("signatureID")
	err := h.ledger.Revoke(ctx, signatures.RevokeRequest{
		SignatureID: signatureID,
		Reason:      request.Reason,
		Actor:       currentSigner(c).SignerID,
		Origin:      c.ClientIP(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	record, err := h.ledger.Get(ctx, signatureID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		DocumentID:  record.DocumentID,
		EventType:   RealtimeEventSignatureRevoked,
		SignatureID: record.ID,
	})
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleAuditTrail(c *gin.Context) {
	signatureID := strings.TrimSpace(c.Param("signatureID"))
	events, err := h.ledger.Trail(c.Request.Context(), signatureID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature_id": signatureID, "events": events})
}

func (h *httpHandler) handleListSignatures(c *gin.Context) {
	documentID := strings.TrimSpace(c.Param("documentID"))
	records, err := h.ledger.ListByDocument(c.Request.Context(), documentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": documentID, "signatures": records})
}

func (h *httpHandler) handleRenderCertificate(c *gin.Context) {
	record, signer, trail, ok := h.loadCertificateInputs(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, markdownContentType, []byte(certificate.RenderFor(record, trail, signer)))
}

func (h *httpHandler) handlePublishCertificate(c *gin.Context) {
	record, signer, trail, ok := h.loadCertificateInputs(c)
	if !ok {
		return
	}
	location, err := h.publisher.Publish(c.Request.Context(), record, trail, signer)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"signature_id": record.ID, "url": location})
}

func (h *httpHandler) loadCertificateInputs(c *gin.Context) (signatures.SignatureRecord, certificate.Signer, []audit.Event, bool) {
	ctx := c.Request.Context()
	record, err := h.ledger.Get(ctx, c.Param("signatureID"))
	if err != nil {
		h.respondError(c, err)
		return signatures.SignatureRecord{}, certificate.Signer{}, nil, false
	}
	trail, err := h.ledger.Trail(ctx, record.ID)
	if err != nil {
		h.respondError(c, err)
		return signatures.SignatureRecord{}, certificate.Signer{}, nil, false
	}
	signer := certificate.Signer{ID: record.SignedBy}
	profile, err := h.signers.Get(ctx, record.SignedBy)
	if err == nil {
		signer.DisplayName = profile.DisplayName
		signer.Email = profile.Email
	} else {
		h.logger.Debug("signer profile unavailable for certificate",
			zap.String("signer_id", record.SignedBy),
			zap.Error(err))
	}
	return record, signer, trail, true
}

func (h *httpHandler) handleGetBlob(c *gin.Context) {
	blobPath := c.Param("blobPath")
	text, err := h.blobs.Get(c.Request.Context(), blobPath)
	if err != nil {
		h.respondError(c, err)
		return
	}
	contentType := "text/plain; charset=utf-8"
	if strings.HasSuffix(blobPath, ".md") {
		contentType = markdownContentType
	}
	c.Data(http.StatusOK, contentType, []byte(text))
}
