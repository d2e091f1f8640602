package posts

import (
	"context"
	"fmt"
	"strings"

	"github.com/InkwellLabs/inkwell/backend/internal/identity"
	"github.com/InkwellLabs/inkwell/backend/internal/profiles"
	"gorm.io/gorm"
)

// AuthorResolver batch-resolves author attribution for a set of identity ids.
// Comments reuse it so posts and comment threads render attribution the same
// way: profile display name first, then identity name, then "Anonymous".
type AuthorResolver struct {
	db *gorm.DB
}

// NewAuthorResolver constructs an AuthorResolver over the shared database.
func NewAuthorResolver(db *gorm.DB) *AuthorResolver {
	return &AuthorResolver{db: db}
}

// Resolve returns an attribution for every requested identity id, including a
// placeholder for ids that no longer resolve.
func (r *AuthorResolver) Resolve(ctx context.Context, identityIDs []string) (map[string]Author, error) {
	authors := make(map[string]Author, len(identityIDs))
	if len(identityIDs) == 0 {
		return authors, nil
	}

	var identities []identity.Identity
	if err := r.db.WithContext(ctx).
		Where("id IN ?", identityIDs).
		Find(&identities).Error; err != nil {
		return nil, fmt.Errorf("posts: author identity lookup: %w", err)
	}
	var profileRows []profiles.Profile
	if err := r.db.WithContext(ctx).
		Where("owner_id IN ?", identityIDs).
		Find(&profileRows).Error; err != nil {
		return nil, fmt.Errorf("posts: author profile lookup: %w", err)
	}

	displayNames := make(map[string]string, len(profileRows))
	for _, profile := range profileRows {
		displayNames[profile.OwnerID] = profile.DisplayName
	}
	for _, record := range identities {
		name := displayNames[record.ID]
		if name == "" {
			name = strings.TrimSpace(record.Name)
		}
		if name == "" {
			name = anonymousAuthor
		}
		authors[record.ID] = Author{Name: name, Email: record.Email}
	}
	for _, id := range identityIDs {
		if _, ok := authors[id]; !ok {
			authors[id] = Author{Name: anonymousAuthor}
		}
	}
	return authors, nil
}
