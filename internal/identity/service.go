package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/auth"
	"github.com/InkwellLabs/inkwell/backend/internal/ids"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentialsFormat indicates a syntactically unusable email or
	// an empty password, rejected before any storage access.
	ErrInvalidCredentialsFormat = errors.New("identity: invalid credentials format")
	// ErrAlreadyRegistered indicates a sign-up for an email that already has
	// a credential account.
	ErrAlreadyRegistered = errors.New("identity: already registered")
	// ErrInvalidCredentials is the single generic sign-in failure. It covers
	// both an unknown email and a wrong password; callers must not be able to
	// tell the two apart.
	ErrInvalidCredentials = errors.New("identity: invalid email or password")

	errMissingDatabase   = errors.New("identity: database handle is required")
	errMissingHasher     = errors.New("identity: hasher is required")
	errMissingResolver   = errors.New("identity: resolver is required")
	errMissingIDProvider = errors.New("identity: id provider is required")
	// ErrIdentityNotFound indicates a lookup for an identity id that does not exist.
	ErrIdentityNotFound = errors.New("identity: not found")
)

var emailValidator = validator.New()

// ServiceConfig describes the dependencies of the authentication orchestrator.
type ServiceConfig struct {
	Database   *gorm.DB
	Hasher     auth.Hasher
	Resolver   *Resolver
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service orchestrates the sign-up and sign-in flows over the credential
// store, the secret hasher, and the account resolver.
type Service struct {
	db         *gorm.DB
	hasher     auth.Hasher
	resolver   *Resolver
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the orchestrator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Hasher == nil {
		return nil, errMissingHasher
	}
	if cfg.Resolver == nil {
		return nil, errMissingResolver
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
		hasher:     cfg.Hasher,
		resolver:   cfg.Resolver,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Request is the single inbound authentication call.
type Request struct {
	Email       string
	Password    string
	Flow        Flow
	DisplayName string
	Role        string
}

// Authenticate runs the requested flow and returns the identity id on
// success. All expected failures surface as sentinel errors from the
// package taxonomy; anything else is a storage fault.
func (s *Service) Authenticate(ctx context.Context, req Request) (string, error) {
	switch req.Flow {
	case FlowSignUp, FlowSignIn:
	default:
		return "", ErrUnknownFlow
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || emailValidator.Var(email, "email") != nil {
		return "", fmt.Errorf("%w: email", ErrInvalidCredentialsFormat)
	}
	if req.Password == "" {
		return "", fmt.Errorf("%w: password", ErrInvalidCredentialsFormat)
	}

	switch req.Flow {
	case FlowSignUp:
		return s.signUp(ctx, email, req)
	default:
		return s.signIn(ctx, email, req.Password)
	}
}

func (s *Service) signUp(ctx context.Context, email string, req Request) (string, error) {
	// The existence pre-check keeps the common duplicate sign-up cheap; the
	// accounts primary key is what actually resolves the race below.
	_, found, err := s.resolver.Resolve(ctx, ProviderCredentials, email)
	if err != nil {
		return "", err
	}
	if found {
		return "", ErrAlreadyRegistered
	}

	secretHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", fmt.Errorf("identity: secret hashing: %w", err)
	}

	identityID, err := s.idProvider.NewID()
	if err != nil {
		return "", fmt.Errorf("identity: id generation: %w", err)
	}

	role := RoleUser
	if req.Role == RoleAdmin {
		role = RoleAdmin
	}

	now := s.clock().UTC()
	record := Identity{
		ID:        identityID,
		Email:     email,
		Name:      strings.TrimSpace(req.DisplayName),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := Account{
		Provider:   ProviderCredentials,
		ExternalID: email,
		IdentityID: identityID,
		SecretHash: secretHash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	if txErr != nil {
		if isDuplicateKey(txErr) {
			return "", ErrAlreadyRegistered
		}
		s.logger.Error("sign-up persistence failed", zap.Error(txErr))
		return "", fmt.Errorf("identity: sign-up persistence: %w", txErr)
	}

	s.logger.Info("identity created", zap.String("identity_id", identityID))
	return identityID, nil
}

func (s *Service) signIn(ctx context.Context, email, password string) (string, error) {
	account, found, err := s.resolver.ResolveWithSecret(ctx, ProviderCredentials, email, password)
	if err != nil {
		s.logger.Error("sign-in resolution failed", zap.Error(err))
		return "", fmt.Errorf("identity: sign-in resolution: %w", err)
	}
	if !found {
		return "", ErrInvalidCredentials
	}
	return account.IdentityID, nil
}

// Get returns the identity record for the provided id.
func (s *Service) Get(ctx context.Context, identityID string) (Identity, error) {
	var record Identity
	err := s.db.WithContext(ctx).Where("id = ?", identityID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrIdentityNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("identity: lookup: %w", err)
	}
	return record, nil
}

// isDuplicateKey reports whether err stems from a uniqueness-constraint
// violation. The sqlite driver does not always translate to
// gorm.ErrDuplicatedKey, so the raw message is checked as well.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "UNIQUE constraint failed") ||
		strings.Contains(message, "constraint failed")
}
