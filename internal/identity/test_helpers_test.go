package identity

import (
	"fmt"
	"testing"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// stubHasher is a fast deterministic substitute for the argon2id hasher.
type stubHasher struct{}

func (stubHasher) Hash(secret string) (string, error) {
	return "stub$" + secret, nil
}

func (stubHasher) Verify(secret, encoded string) (bool, error) {
	return encoded == "stub$"+secret, nil
}

var _ auth.Hasher = stubHasher{}

func openTestDB(t *testing.T) *gorm.DB {
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
	if err := db.AutoMigrate(&Account{}, &Identity{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

type sequentialIDs struct {
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("identity-%d", p.next), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := openTestDB(t)
	hasher := stubHasher{}
	resolver, err := NewResolver(db, hasher)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Hasher:     hasher,
		Resolver:   resolver,
		IDProvider: &sequentialIDs{},
		Clock:      func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}
