package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "contracts_session"
	testSessionUserID        = "google:user-123"
	testSessionUserEmail     = "signer@example.com"
)

func newTestValidator(t *testing.T, clockNow time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock: func() time.Time {
			return clockNow
		},
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signTestToken(t *testing.T, method jwt.SigningMethod, key interface{}, issuer string, issuedAt, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, SessionClaims{
		UserID:    testSessionUserID,
		UserEmail: testSessionUserEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-123",
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)
	signed := signTestToken(t, jwt.SigningMethodHS256, []byte(testSessionSigningSecret), defaultSessionIssuer, clockNow.Add(-time.Minute), clockNow.Add(time.Hour))

	claims, err := validator.ValidateToken(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.UserID != testSessionUserID || claims.UserEmail != testSessionUserEmail {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSessionValidatorRejectsInvalidTokens(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	testCases := []struct {
		name     string
		token    string
		expected error
	}{
		{
			name:     "expired",
			token:    signTestToken(t, jwt.SigningMethodHS256, []byte(testSessionSigningSecret), defaultSessionIssuer, clockNow.Add(-2*time.Hour), clockNow.Add(-time.Hour)),
			expected: ErrExpiredSessionToken,
		},
		{
			name:     "foreign issuer",
			token:    signTestToken(t, jwt.SigningMethodHS256, []byte(testSessionSigningSecret), "someone-else", clockNow.Add(-time.Minute), clockNow.Add(time.Hour)),
			expected: ErrInvalidSessionToken,
		},
		{
			name:     "wrong secret",
			token:    signTestToken(t, jwt.SigningMethodHS256, []byte("other"), defaultSessionIssuer, clockNow.Add(-time.Minute), clockNow.Add(time.Hour)),
			expected: ErrInvalidSessionToken,
		},
		{
			name:     "wrong algorithm",
			token:    signTestToken(t, jwt.SigningMethodHS384, []byte(testSessionSigningSecret), defaultSessionIssuer, clockNow.Add(-time.Minute), clockNow.Add(time.Hour)),
			expected: ErrInvalidSessionToken,
		},
		{
			name:     "empty",
			token:    "  ",
			expected: ErrMissingSessionToken,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := validator.ValidateToken(testCase.token); !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
		})
	}
}

func TestSessionValidatorValidateRequest(t *testing.T) {
	clockNow := time.Now()
	validator := newTestValidator(t, clockNow)
	signed := signTestToken(t, jwt.SigningMethodHS256, []byte(testSessionSigningSecret), defaultSessionIssuer, clockNow.Add(-time.Minute), clockNow.Add(time.Hour))

	cookieRequest := httptest.NewRequest(http.MethodGet, "/signatures/sig-1", http.NoBody)
	cookieRequest.AddCookie(&http.Cookie{Name: testSessionCookieName, Value: signed})
	if claims, err := validator.ValidateRequest(cookieRequest); err != nil || claims.UserID != testSessionUserID {
		t.Fatalf("cookie validation failed: %+v (%v)", claims, err)
	}

	bearerRequest := httptest.NewRequest(http.MethodGet, "/signatures/sig-1", http.NoBody)
	bearerRequest.Header.Set("Authorization", "Bearer "+signed)
	if claims, err := validator.ValidateRequest(bearerRequest); err != nil || claims.UserID != testSessionUserID {
		t.Fatalf("bearer validation failed: %+v (%v)", claims, err)
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/signatures/sig-1", http.NoBody)
	if _, err := validator.ValidateRequest(anonymous); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
}

func TestNewSessionValidatorRequiresSecretAndCookie(t *testing.T) {
	if _, err := NewSessionValidator(SessionValidatorConfig{CookieName: testSessionCookieName}); !errors.Is(err, ErrMissingSessionSigningKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := NewSessionValidator(SessionValidatorConfig{SigningSecret: []byte("x")}); !errors.Is(err, ErrMissingSessionCookieName) {
		t.Fatalf("expected missing cookie error, got %v", err)
	}
}
