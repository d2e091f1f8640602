package profiles

import "time"

// Profile carries the user-facing attributes attached to an identity. The
// unique index on owner_id guarantees at most one profile per identity; the
// unique index on display_name_key enforces case-insensitive display-name
// uniqueness regardless of which call site writes the name.
type Profile struct {
	ID             string    `gorm:"column:id;primaryKey;size:190;not null"`
	OwnerID        string    `gorm:"column:owner_id;size:190;not null;uniqueIndex"`
	DisplayName    string    `gorm:"column:display_name;size:30;not null"`
	DisplayNameKey string    `gorm:"column:display_name_key;size:30;not null;uniqueIndex"`
	Role           string    `gorm:"column:role;size:32;not null;default:user"`
	Bio            string    `gorm:"column:bio;size:2048"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

// Availability reports whether a display name can be claimed and, when it
// cannot, a human-readable reason.
type Availability struct {
	Available bool
	Reason    string
}
