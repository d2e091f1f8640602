package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProviderCredentials tags accounts backed by an email/password pair. It is
// the only provider this service ships; the account schema still keys on the
// provider so linked logins can be added without a migration.
const ProviderCredentials = "credentials"

const (
	// RoleUser is the default role granted at sign-up.
	RoleUser = "user"
	// RoleAdmin marks authors allowed to publish posts and upload images.
	RoleAdmin = "admin"
)

// Account maps a (provider, external id) pair to an identity and holds the
// credential secret hash. The composite primary key is the uniqueness
// constraint that resolves duplicate sign-up races; the resolver's pre-check
// is an optimization only.
type Account struct {
	Provider   string    `gorm:"column:provider;primaryKey;size:32;not null"`
	ExternalID string    `gorm:"column:external_id;primaryKey;size:320;not null"`
	IdentityID string    `gorm:"column:identity_id;size:190;not null;index"`
	SecretHash string    `gorm:"column:secret_hash;size:512;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing credential accounts.
func (Account) TableName() string {
	return "accounts"
}

// Identity is the durable internal representation of a person, created
// exactly once at first successful sign-up and never mutated by the
// authentication flow.
type Identity struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Email     string    `gorm:"column:email;size:320;not null"`
	Name      string    `gorm:"column:name;size:320"`
	Role      string    `gorm:"column:role;size:32;not null;default:user"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing identities.
func (Identity) TableName() string {
	return "identities"
}

// Flow selects the authentication branch. It is a closed enum so the
// orchestrator can switch exhaustively; unknown values exist only at the
// deserialization boundary.
type Flow int

const (
	FlowUnknown Flow = iota
	FlowSignUp
	FlowSignIn
)

// ErrUnknownFlow indicates a flow descriptor outside the two supported values.
var ErrUnknownFlow = errors.New("identity: unknown authentication flow")

// ParseFlow converts the wire-level flow tag into the closed enum.
func ParseFlow(value string) (Flow, error) {
	switch strings.TrimSpace(value) {
	case "signUp":
		return FlowSignUp, nil
	case "signIn":
		return FlowSignIn, nil
	default:
		return FlowUnknown, fmt.Errorf("%w: %q", ErrUnknownFlow, value)
	}
}

// String renders the wire-level tag for the flow.
func (f Flow) String() string {
	switch f {
	case FlowSignUp:
		return "signUp"
	case FlowSignIn:
		return "signIn"
	default:
		return "unknown"
	}
}
