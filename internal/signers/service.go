// Package signers resolves authenticated sessions to canonical signer identities.
package signers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultProvider = "default"

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("signers: invalid identity")
	// ErrSignerNotFound indicates that no profile exists for the signer id.
	ErrSignerNotFound = errors.New("signers: signer not found")
)

// ServiceConfig describes the dependencies required for signer resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages signer profiles keyed by provider and subject.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the signer service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("signers: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Resolve returns the profile for the session claims, creating it the first time
// a provider+subject pair is seen and refreshing name and email afterwards.
func (s *Service) Resolve(ctx context.Context, claims auth.SessionClaims) (Profile, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return Profile{}, ErrInvalidIdentity
	}
	email := normalize(claims.UserEmail)
	displayName := normalize(claims.UserDisplayName)

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if profile, ok := cached.(Profile); ok && profile.Email == email && profile.DisplayName == displayName {
			return profile, nil
		}
	}

	database := s.db.WithContext(ctx)
	var profile Profile
	err := database.Where("provider = ? AND subject = ?", provider, subject).Take(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		signerID, err := allocateSignerID(database, provider, subject)
		if err != nil {
			return Profile{}, err
		}
		profile = Profile{
			Provider:    provider,
			Subject:     subject,
			SignerID:    signerID,
			Email:       email,
			DisplayName: displayName,
			LastSeenAt:  s.now().UTC(),
		}
		if err := database.Create(&profile).Error; err != nil {
			return Profile{}, err
		}
	case err != nil:
		return Profile{}, err
	default:
		updates := map[string]interface{}{"last_seen_at": s.now().UTC()}
		if email != "" && email != profile.Email {
			updates["email"] = email
			profile.Email = email
		}
		if displayName != "" && displayName != profile.DisplayName {
			updates["display_name"] = displayName
			profile.DisplayName = displayName
		}
		if err := database.Model(&Profile{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).Error; err != nil {
			s.logger.Warn("signer profile refresh failed",
				zap.String("signer_id", profile.SignerID),
				zap.Error(err))
		}
	}

	s.cache.Store(cacheKey, profile)
	return profile, nil
}

// Get loads the profile of a canonical signer id.
func (s *Service) Get(ctx context.Context, signerID string) (Profile, error) {
	trimmed := normalize(signerID)
	if trimmed == "" {
		return Profile{}, ErrInvalidIdentity
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("signer_id = ?", trimmed).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrSignerNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// allocateSignerID keeps the bare subject as the signer id unless another
// provider already owns it, in which case the id carries the provider.
func allocateSignerID(database *gorm.DB, provider, subject string) (string, error) {
	var taken int64
	if err := database.Model(&Profile{}).Where("signer_id = ?", subject).Count(&taken).Error; err != nil {
		return "", err
	}
	if taken == 0 {
		return subject, nil
	}
	return provider + ":" + subject, nil
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if prefix, rest, found := strings.Cut(raw, ":"); found {
			if normalize(prefix) != "" && normalize(rest) != "" {
				provider = normalize(prefix)
				subject = normalize(rest)
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}

	return provider, subject
}
