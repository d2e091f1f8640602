package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/InkwellLabs/inkwell/backend/internal/auth"
	"gorm.io/gorm"
)

var (
	errResolverMissingDatabase = errors.New("identity: resolver requires a database handle")
	errResolverMissingHasher   = errors.New("identity: resolver requires a hasher")
)

// Resolver looks up credential accounts. It never creates records; both call
// modes are side-effect free.
type Resolver struct {
	db            *gorm.DB
	hasher        auth.Hasher
	referenceHash string
}

// NewResolver constructs a Resolver. A reference hash is computed up front so
// verification work is performed even when no account exists, keeping the
// not-found and wrong-secret paths close in timing.
func NewResolver(db *gorm.DB, hasher auth.Hasher) (*Resolver, error) {
	if db == nil {
		return nil, errResolverMissingDatabase
	}
	if hasher == nil {
		return nil, errResolverMissingHasher
	}
	reference, err := hasher.Hash("resolver-reference-secret")
	if err != nil {
		return nil, fmt.Errorf("identity: reference hash: %w", err)
	}
	return &Resolver{db: db, hasher: hasher, referenceHash: reference}, nil
}

// Resolve performs a lookup-only existence check. The boolean reports whether
// the account was found; absence is an expected outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, provider, externalID string) (Account, bool, error) {
	var account Account
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, fmt.Errorf("identity: account lookup: %w", err)
	}
	return account, true, nil
}

// ResolveWithSecret loads the account and verifies the candidate secret
// against the stored hash. A missing account and a mismatched secret are both
// reported as not-found so callers cannot distinguish them.
func (r *Resolver) ResolveWithSecret(ctx context.Context, provider, externalID, secret string) (Account, bool, error) {
	account, found, err := r.Resolve(ctx, provider, externalID)
	if err != nil {
		return Account{}, false, err
	}
	if !found {
		// Burn equivalent verification work against the reference hash.
		_, _ = r.hasher.Verify(secret, r.referenceHash)
		return Account{}, false, nil
	}

	ok, err := r.hasher.Verify(secret, account.SecretHash)
	if err != nil {
		return Account{}, false, fmt.Errorf("identity: secret verification: %w", err)
	}
	if !ok {
		return Account{}, false, nil
	}
	return account, true, nil
}
