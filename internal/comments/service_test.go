package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/identity"
	"github.com/InkwellLabs/inkwell/backend/internal/posts"
	"github.com/InkwellLabs/inkwell/backend/internal/profiles"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type postMap map[string]posts.Post

func (m postMap) Get(_ context.Context, postID string) (posts.Post, error) {
	post, ok := m[postID]
	if !ok {
		return posts.Post{}, posts.ErrPostNotFound
	}
	return post, nil
}

type sequentialIDs struct {
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("comment-%03d", p.next), nil
}

type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, known postMap) *Service {
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
	if err := db.AutoMigrate(&Comment{}, &identity.Identity{}, &profiles.Profile{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	clock := &tickingClock{now: time.Unix(1_700_000_000, 0)}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Posts:      known,
		IDProvider: &sequentialIDs{},
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestAddCreatesTopLevelAndNestedComments(t *testing.T) {
	service := newTestService(t, postMap{"post-1": {ID: "post-1"}})
	ctx := context.Background()

	top, err := service.Add(ctx, "post-1", "reader-1", "great post", nil)
	if err != nil {
		t.Fatalf("top-level comment failed: %v", err)
	}
	if top.ParentID != nil {
		t.Fatalf("expected nil parent for top-level comment")
	}

	reply, err := service.Add(ctx, "post-1", "reader-2", "agreed", &top.ID)
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if reply.ParentID == nil || *reply.ParentID != top.ID {
		t.Fatalf("expected reply to reference parent %s, got %v", top.ID, reply.ParentID)
	}
}

func TestAddRejectsBadTargets(t *testing.T) {
	service := newTestService(t, postMap{
		"post-1": {ID: "post-1"},
		"post-2": {ID: "post-2"},
	})
	ctx := context.Background()

	if _, err := service.Add(ctx, "missing-post", "reader-1", "hello", nil); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound, got %v", err)
	}

	ghost := "no-such-comment"
	if _, err := service.Add(ctx, "post-1", "reader-1", "hello", &ghost); !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent for missing parent, got %v", err)
	}

	onOther, err := service.Add(ctx, "post-2", "reader-1", "elsewhere", nil)
	if err != nil {
		t.Fatalf("seed comment failed: %v", err)
	}
	if _, err := service.Add(ctx, "post-1", "reader-1", "cross-post reply", &onOther.ID); !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent for cross-post parent, got %v", err)
	}
}

func TestAddValidatesContent(t *testing.T) {
	service := newTestService(t, postMap{"post-1": {ID: "post-1"}})
	ctx := context.Background()

	if _, err := service.Add(ctx, "post-1", "reader-1", "   ", nil); !errors.Is(err, ErrInvalidComment) {
		t.Fatalf("expected ErrInvalidComment for blank content, got %v", err)
	}
	if _, err := service.Add(ctx, "post-1", "reader-1", strings.Repeat("x", maxCommentLength+1), nil); !errors.Is(err, ErrInvalidComment) {
		t.Fatalf("expected ErrInvalidComment for oversized content, got %v", err)
	}
}

func TestListForPostOrdersAndAttributes(t *testing.T) {
	service := newTestService(t, postMap{"post-1": {ID: "post-1"}})
	ctx := context.Background()

	author := identity.Identity{ID: "reader-1", Email: "reader@example.com", Role: identity.RoleUser}
	if err := service.db.Create(&author).Error; err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}
	profile := profiles.Profile{
		ID:             "profile-1",
		OwnerID:        "reader-1",
		DisplayName:    "First Reader",
		DisplayNameKey: "first reader",
		Role:           identity.RoleUser,
	}
	if err := service.db.Create(&profile).Error; err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}

	first, err := service.Add(ctx, "post-1", "reader-1", "first", nil)
	if err != nil {
		t.Fatalf("first comment failed: %v", err)
	}
	if _, err := service.Add(ctx, "post-1", "unknown-reader", "second", &first.ID); err != nil {
		t.Fatalf("second comment failed: %v", err)
	}

	thread, err := service.ListForPost(ctx, "post-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(thread) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(thread))
	}
	if thread[0].Content != "first" || thread[1].Content != "second" {
		t.Fatalf("expected oldest-first ordering, got %+v", thread)
	}
	if thread[0].Author.Name != "First Reader" {
		t.Fatalf("expected profile attribution, got %+v", thread[0].Author)
	}
	if thread[1].Author.Name != "Anonymous" {
		t.Fatalf("expected anonymous fallback, got %+v", thread[1].Author)
	}
}
