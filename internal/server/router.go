package server

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/blobstore"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/certificate"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signatures"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signers"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/versions"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signerContextKey         = "contracts_signer"
	defaultHeartbeatInterval = 25 * time.Second
	allOrigins               = "*"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingSignerService    = errors.New("signer service dependency required")
	errMissingLedger           = errors.New("signature ledger dependency required")
	errMissingVersionStore     = errors.New("version store dependency required")
	errMissingPublisher        = errors.New("certificate publisher dependency required")
	errMissingBlobStore        = errors.New("blob store dependency required")
)

// Dependencies wires the services exposed over HTTP.
type Dependencies struct {
	SessionValidator  *auth.SessionValidator
	Signers           *signers.Service
	Ledger            *signatures.Ledger
	Versions          *versions.Store
	Publisher         *certificate.Publisher
	Blobs             blobstore.Store
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

// NewHTTPHandler builds the gin engine serving the signature, version and blob routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.SessionValidator == nil:
		return nil, errMissingSessionValidator
	case deps.Signers == nil:
		return nil, errMissingSignerService
	case deps.Ledger == nil:
		return nil, errMissingLedger
	case deps.Versions == nil:
		return nil, errMissingVersionStore
	case deps.Publisher == nil:
		return nil, errMissingPublisher
	case deps.Blobs == nil:
		return nil, errMissingBlobStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeatInterval := deps.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:          deps.SessionValidator,
		signers:           deps.Signers,
		ledger:            deps.Ledger,
		versions:          deps.Versions,
		publisher:         deps.Publisher,
		blobs:             deps.Blobs,
		realtime:          realtime,
		logger:            logger,
		heartbeatInterval: heartbeatInterval,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.POST("/signatures", handler.handleSign)
	protected.GET("/signatures/:signatureID", handler.handleGetSignature)
	protected.POST("/signatures/:signatureID/verify", handler.handleVerify)
	protected.POST("/signatures/:signatureID/revoke", handler.handleRevoke)
	protected.GET("/signatures/:signatureID/audit", handler.handleAuditTrail)
	protected.GET("/signatures/:signatureID/certificate", handler.handleRenderCertificate)
	protected.POST("/signatures/:signatureID/certificate", handler.handlePublishCertificate)

	protected.GET("/documents/:documentID/signatures", handler.handleListSignatures)
	protected.GET("/documents/:documentID/versions", handler.handleListVersions)
	protected.POST("/documents/:documentID/versions", handler.handleCreateVersion)
	protected.GET("/documents/:documentID/versions/compare", handler.handleCompareVersions)
	protected.GET("/documents/:documentID/versions/:versionID", handler.handleGetVersion)
	protected.DELETE("/documents/:documentID/versions/:versionID", handler.handleDeleteVersion)
	protected.GET("/documents/:documentID/versions/:versionID/restore", handler.handleRestoreVersion)
	protected.GET("/documents/:documentID/autosave", handler.handleGetAutoSave)
	protected.PUT("/documents/:documentID/autosave", handler.handleAutoSave)
	protected.DELETE("/documents/:documentID/autosave", handler.handleClearAutoSave)
	protected.GET("/documents/:documentID/events", handler.handleDocumentEvents)

	protected.GET("/blobs/*blobPath", handler.handleGetBlob)

	return router, nil
}

type httpHandler struct {
	sessions          *auth.SessionValidator
	signers           *signers.Service
	ledger            *signatures.Ledger
	versions          *versions.Store
	publisher         *certificate.Publisher
	blobs             blobstore.Store
	realtime          *RealtimeDispatcher
	logger            *zap.Logger
	heartbeatInterval time.Duration
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	// Session cookies only cross origins that are listed explicitly.
	if len(origins) == 0 || slices.Contains(origins, allOrigins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	profile, err := h.signers.Resolve(c.Request.Context(), claims)
	if errors.Is(err, signers.ErrInvalidIdentity) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("signer resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.Set(signerContextKey, profile)
	c.Next()
}

func currentSigner(c *gin.Context) signers.Profile {
	value, _ := c.Get(signerContextKey)
	profile, _ := value.(signers.Profile)
	return profile
}

type coded interface {
	Code() string
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, label := classifyError(err)
	code := ""
	var codedErr coded
	if errors.As(err, &codedErr) {
		code = codedErr.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
	}
	body := gin.H{"error": label}
	if code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

func classifyError(err error) (int, string) {
	var verificationErr *signatures.VerificationError
	var persistenceErr *signatures.PersistenceError
	switch {
	case isInvalidInput(err):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &verificationErr),
		errors.Is(err, versions.ErrVersionNotFound),
		errors.Is(err, versions.ErrAutoSaveNotFound),
		errors.Is(err, blobstore.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &persistenceErr), errors.Is(err, versions.ErrPersistence):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

var invalidInputErrors = []error{
	signatures.ErrInvalidSignatureType,
	signatures.ErrInvalidDocumentID,
	signatures.ErrInvalidSignatureID,
	signatures.ErrInvalidSigner,
	signatures.ErrEmptyContent,
	signatures.ErrMissingRevocationReason,
	versions.ErrInvalidDocumentID,
	versions.ErrInvalidVersionID,
	versions.ErrInvalidName,
	blobstore.ErrInvalidPath,
}

func isInvalidInput(err error) bool {
	for _, sentinel := range invalidInputErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func badRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
}
