package posts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/identity"
	"github.com/InkwellLabs/inkwell/backend/internal/profiles"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDs struct {
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("post-%03d", p.next), nil
}

// tickingClock advances one second per call so keyset ordering is exercised.
type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Post{}, &identity.Identity{}, &profiles.Profile{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	for _, statement := range FTSStatements() {
		if err := db.Exec(statement).Error; err != nil {
			t.Fatalf("failed to install fts schema: %v", err)
		}
	}

	clock := &tickingClock{now: time.Unix(1_700_000_000, 0)}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &sequentialIDs{},
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func seedAuthor(t *testing.T, db *gorm.DB, identityID, email, displayName string) {
	t.Helper()
	record := identity.Identity{ID: identityID, Email: email, Role: identity.RoleAdmin}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}
	if displayName != "" {
		profile := profiles.Profile{
			ID:             identityID + "-profile",
			OwnerID:        identityID,
			DisplayName:    displayName,
			DisplayNameKey: displayName,
			Role:           identity.RoleAdmin,
		}
		if err := db.Create(&profile).Error; err != nil {
			t.Fatalf("failed to seed profile: %v", err)
		}
	}
}

func mustCreate(t *testing.T, service *Service, authorID, title, content string, tags []string) Post {
	t.Helper()
	post, err := service.Create(context.Background(), authorID, title, content, tags)
	if err != nil {
		t.Fatalf("failed to create post %q: %v", title, err)
	}
	return post
}
