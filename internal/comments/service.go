package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/ids"
	"github.com/InkwellLabs/inkwell/backend/internal/posts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCommentLength = 4000

var (
	// ErrInvalidComment indicates an empty or oversized comment body.
	ErrInvalidComment = errors.New("comments: invalid comment")
	// ErrPostNotFound indicates a comment aimed at a missing or unpublished post.
	ErrPostNotFound = errors.New("comments: post not found")
	// ErrInvalidParent indicates a reply whose parent is missing or belongs to
	// a different post.
	ErrInvalidParent = errors.New("comments: invalid parent comment")

	errMissingDatabase   = errors.New("comments: database handle is required")
	errMissingPosts      = errors.New("comments: post reader is required")
	errMissingIDProvider = errors.New("comments: id provider is required")
)

// PostReader supplies the post existence check used before accepting a comment.
type PostReader interface {
	Get(ctx context.Context, postID string) (posts.Post, error)
}

// ServiceConfig describes the dependencies of the comment service.
type ServiceConfig struct {
	Database   *gorm.DB
	Posts      PostReader
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service persists and lists nested comment threads.
type Service struct {
	db         *gorm.DB
	posts      PostReader
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the comment service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Posts == nil {
		return nil, errMissingPosts
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
		posts:      cfg.Posts,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Add appends a comment to the post's thread. Replies must reference a parent
// comment on the same post.
func (s *Service) Add(ctx context.Context, postID, authorID, content string, parentID *string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxCommentLength {
		return Comment{}, ErrInvalidComment
	}

	if _, err := s.posts.Get(ctx, postID); err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			return Comment{}, ErrPostNotFound
		}
		return Comment{}, fmt.Errorf("comments: post lookup: %w", err)
	}

	if parentID != nil {
		var parent Comment
		err := s.db.WithContext(ctx).Where("id = ?", *parentID).Take(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Comment{}, ErrInvalidParent
		}
		if err != nil {
			return Comment{}, fmt.Errorf("comments: parent lookup: %w", err)
		}
		if parent.PostID != postID {
			return Comment{}, fmt.Errorf("%w: parent belongs to another post", ErrInvalidParent)
		}
	}

	commentID, err := s.idProvider.NewID()
	if err != nil {
		return Comment{}, fmt.Errorf("comments: id generation: %w", err)
	}

	comment := Comment{
		ID:               commentID,
		PostID:           postID,
		AuthorID:         authorID,
		ParentID:         parentID,
		Content:          content,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logger.Error("comment insert failed", zap.Error(err))
		return Comment{}, fmt.Errorf("comments: insert: %w", err)
	}
	return comment, nil
}

// ListForPost returns the post's comments oldest first with author
// attribution attached; the caller assembles the reply tree from ParentID.
func (s *Service) ListForPost(ctx context.Context, postID string) ([]CommentWithAuthor, error) {
	var thread []Comment
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at_s ASC, id ASC").
		Find(&thread).Error
	if err != nil {
		return nil, fmt.Errorf("comments: list: %w", err)
	}

	authors, err := posts.NewAuthorResolver(s.db).Resolve(ctx, commentAuthorIDs(thread))
	if err != nil {
		return nil, err
	}

	withAuthors := make([]CommentWithAuthor, 0, len(thread))
	for _, comment := range thread {
		withAuthors = append(withAuthors, CommentWithAuthor{
			Comment: comment,
			Author:  authors[comment.AuthorID],
		})
	}
	return withAuthors, nil
}

func commentAuthorIDs(thread []Comment) []string {
	seen := make(map[string]struct{}, len(thread))
	ids := make([]string, 0, len(thread))
	for _, comment := range thread {
		if _, dup := seen[comment.AuthorID]; dup {
			continue
		}
		seen[comment.AuthorID] = struct{}{}
		ids = append(ids, comment.AuthorID)
	}
	return ids
}
