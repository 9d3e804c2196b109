package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func authorizeWithToken(t *testing.T, token string) (*httptest.ResponseRecorder, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/signatures/sig-1", http.NoBody)
	if token != "" {
		request.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	}
	ctx.Request = request

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("session validator: %v", err)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{sessions: validator, logger: zap.New(core)}

	handler.authorizeRequest(ctx)
	return recorder, logs
}

func TestAuthorizeRequestLogsExpiredSessionAtInfoLevel(t *testing.T) {
	recorder, logs := authorizeWithToken(t, issueTestSession(t, time.Now().Add(-time.Hour)))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired session, got %s", entry.Level)
	}
	if entry.Message != "session validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired session error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsForgedSessionAtWarnLevel(t *testing.T) {
	recorder, logs := authorizeWithToken(t, "not-a-jwt")

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %v", entries)
	}
}

func TestProtectedRoutesRejectAnonymousRequests(t *testing.T) {
	server := newTestServer(t, zap.NewNop())
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/documents/doc-1/versions", http.NoBody))
	expectStatus(t, recorder, http.StatusUnauthorized)
}
