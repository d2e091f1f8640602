package profiles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/identity"
	"github.com/InkwellLabs/inkwell/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minDisplayNameLength = 2
	maxDisplayNameLength = 30
	fallbackDisplayName  = "Reader"
)

var (
	// ErrInvalidDisplayName indicates a name outside the length bounds or the
	// allowed character set.
	ErrInvalidDisplayName = errors.New("profiles: invalid display name")
	// ErrDisplayNameTaken indicates the name is already held by another identity.
	ErrDisplayNameTaken = errors.New("profiles: display name taken")
	// ErrProfileNotFound is internal; callers that can create on demand
	// should use EnsureProfile instead of surfacing it.
	ErrProfileNotFound = errors.New("profiles: profile not found")

	errMissingDatabase   = errors.New("profiles: database handle is required")
	errMissingIdentities = errors.New("profiles: identity reader is required")
	errMissingIDProvider = errors.New("profiles: id provider is required")

	displayNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)
)

// IdentityReader supplies the identity attributes used to derive default
// profile fields.
type IdentityReader interface {
	Get(ctx context.Context, identityID string) (identity.Identity, error)
}

// ServiceConfig describes the dependencies of the profile provisioner.
type ServiceConfig struct {
	Database   *gorm.DB
	Identities IdentityReader
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service provisions and mutates user profiles.
type Service struct {
	db         *gorm.DB
	identities IdentityReader
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Identities == nil {
		return nil, errMissingIdentities
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
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
		db:         cfg.Database,
		identities: cfg.Identities,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// GetByOwner returns the profile owned by the identity, or ErrProfileNotFound.
func (s *Service) GetByOwner(ctx context.Context, identityID string) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("owner_id = ?", identityID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("profiles: lookup: %w", err)
	}
	return profile, nil
}

// EnsureProfile returns the existing profile for the identity or creates one
// with derived defaults. It is idempotent; concurrent calls are resolved by
// the unique index on owner_id, with the loser returning the winner's row.
func (s *Service) EnsureProfile(ctx context.Context, identityID string) (Profile, error) {
	existing, err := s.GetByOwner(ctx, identityID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return Profile{}, err
	}

	record, err := s.identities.Get(ctx, identityID)
	if err != nil {
		return Profile{}, fmt.Errorf("profiles: identity lookup: %w", err)
	}

	base := defaultDisplayName(record)
	for attempt := 0; attempt < 5; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = suffixed(base, attempt+1)
		}

		profileID, err := s.idProvider.NewID()
		if err != nil {
			return Profile{}, fmt.Errorf("profiles: id generation: %w", err)
		}

		now := s.clock().UTC()
		profile := Profile{
			ID:             profileID,
			OwnerID:        identityID,
			DisplayName:    candidate,
			DisplayNameKey: nameKey(candidate),
			Role:           record.Role,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		createErr := s.db.WithContext(ctx).Create(&profile).Error
		if createErr == nil {
			s.logger.Info("profile provisioned",
				zap.String("identity_id", identityID),
				zap.String("display_name", candidate))
			return profile, nil
		}
		if isOwnerConflict(createErr) {
			// Lost the provisioning race; the winner's profile is canonical.
			return s.GetByOwner(ctx, identityID)
		}
		if isDisplayNameConflict(createErr) {
			continue
		}
		return Profile{}, fmt.Errorf("profiles: provision: %w", createErr)
	}
	return Profile{}, fmt.Errorf("profiles: provision: could not find a free display name for %q", base)
}

// UpdateDisplayName validates and applies a display-name change, creating the
// profile on demand when the identity has none yet.
func (s *Service) UpdateDisplayName(ctx context.Context, identityID, newName string) (Profile, error) {
	newName = strings.TrimSpace(newName)
	if err := validateDisplayName(newName); err != nil {
		return Profile{}, err
	}

	key := nameKey(newName)
	var holder Profile
	err := s.db.WithContext(ctx).
		Where("display_name_key = ? AND owner_id <> ?", key, identityID).
		Take(&holder).Error
	if err == nil {
		return Profile{}, ErrDisplayNameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, fmt.Errorf("profiles: availability lookup: %w", err)
	}

	profile, err := s.EnsureProfile(ctx, identityID)
	if err != nil {
		return Profile{}, err
	}

	updateErr := s.db.WithContext(ctx).Model(&Profile{}).
		Where("owner_id = ?", identityID).
		Updates(map[string]interface{}{
			"display_name":     newName,
			"display_name_key": key,
			"updated_at":       s.clock().UTC(),
		}).Error
	if updateErr != nil {
		if isDisplayNameConflict(updateErr) {
			return Profile{}, ErrDisplayNameTaken
		}
		return Profile{}, fmt.Errorf("profiles: rename: %w", updateErr)
	}

	profile.DisplayName = newName
	profile.DisplayNameKey = key
	return profile, nil
}

// CheckAvailability reports whether the display name could be claimed by a
// new profile, mirroring the validation applied on update.
func (s *Service) CheckAvailability(ctx context.Context, name string) (Availability, error) {
	name = strings.TrimSpace(name)
	if len(name) < minDisplayNameLength || len(name) > maxDisplayNameLength {
		return Availability{Reason: "Display name must be between 2 and 30 characters"}, nil
	}
	if !displayNamePattern.MatchString(name) {
		return Availability{Reason: "Display name can only contain letters, numbers, spaces, hyphens, and underscores"}, nil
	}

	var holder Profile
	err := s.db.WithContext(ctx).Where("display_name_key = ?", nameKey(name)).Take(&holder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Availability{Available: true}, nil
	}
	if err != nil {
		return Availability{}, fmt.Errorf("profiles: availability lookup: %w", err)
	}
	return Availability{Reason: "This display name is already taken"}, nil
}

func validateDisplayName(name string) error {
	if len(name) < minDisplayNameLength || len(name) > maxDisplayNameLength {
		return fmt.Errorf("%w: must be between %d and %d characters",
			ErrInvalidDisplayName, minDisplayNameLength, maxDisplayNameLength)
	}
	if !displayNamePattern.MatchString(name) {
		return fmt.Errorf("%w: allowed characters are letters, numbers, spaces, hyphens, and underscores",
			ErrInvalidDisplayName)
	}
	return nil
}

// nameKey is the single case-folding rule for display-name uniqueness.
func nameKey(name string) string {
	return strings.ToLower(name)
}

// defaultDisplayName prefers the explicit identity name, then the local part
// of the email, then a generic placeholder. The result always passes
// validateDisplayName.
func defaultDisplayName(record identity.Identity) string {
	candidates := []string{strings.TrimSpace(record.Name)}
	if at := strings.IndexByte(record.Email, '@'); at > 0 {
		candidates = append(candidates, record.Email[:at])
	}
	for _, candidate := range candidates {
		cleaned := sanitizeDisplayName(candidate)
		if cleaned != "" {
			return cleaned
		}
	}
	return fallbackDisplayName
}

func sanitizeDisplayName(raw string) string {
	var builder strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == ' ', r == '_', r == '-':
			builder.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(builder.String())
	if len(cleaned) < minDisplayNameLength {
		return ""
	}
	if len(cleaned) > maxDisplayNameLength {
		cleaned = strings.TrimSpace(cleaned[:maxDisplayNameLength])
	}
	return cleaned
}

func suffixed(base string, n int) string {
	suffix := fmt.Sprintf("-%d", n)
	if len(base)+len(suffix) > maxDisplayNameLength {
		base = strings.TrimSpace(base[:maxDisplayNameLength-len(suffix)])
	}
	return base + suffix
}

func isOwnerConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "owner_id")
}

func isDisplayNameConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "display_name_key")
}
