package posts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
	anonymousAuthor = "Anonymous"
)

var (
	// ErrInvalidPost indicates a post payload with an empty title or body.
	ErrInvalidPost = errors.New("posts: invalid post")
	// ErrDuplicateSlug indicates a title whose derived slug is already in use.
	ErrDuplicateSlug = errors.New("posts: slug already in use")
	// ErrPostNotFound indicates a lookup that matched no published post.
	ErrPostNotFound = errors.New("posts: not found")
	// ErrInvalidCursor indicates an unusable pagination cursor.
	ErrInvalidCursor = errors.New("posts: invalid pagination cursor")

	errMissingDatabase   = errors.New("posts: database handle is required")
	errMissingIDProvider = errors.New("posts: id provider is required")
)

// ServiceConfig describes the dependencies of the post service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service persists posts and serves the paginated, filterable, search-aware
// listing surface.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the post service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
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
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Create persists a new published post authored by the given identity.
func (s *Service) Create(ctx context.Context, authorID, title, content string, tags []string) (Post, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Post{}, fmt.Errorf("%w: title required", ErrInvalidPost)
	}
	if strings.TrimSpace(content) == "" {
		return Post{}, fmt.Errorf("%w: content required", ErrInvalidPost)
	}
	slug := Slugify(title)
	if slug == "" {
		return Post{}, fmt.Errorf("%w: title yields empty slug", ErrInvalidPost)
	}

	postID, err := s.idProvider.NewID()
	if err != nil {
		return Post{}, fmt.Errorf("posts: id generation: %w", err)
	}

	now := s.clock().UTC().Unix()
	post := Post{
		ID:               postID,
		Title:            title,
		Slug:             slug,
		Content:          content,
		Excerpt:          MakeExcerpt(content),
		AuthorID:         authorID,
		Published:        true,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := post.SetTags(tags); err != nil {
		return Post{}, fmt.Errorf("posts: tag encoding: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		if strings.Contains(err.Error(), "slug") {
			return Post{}, ErrDuplicateSlug
		}
		s.logger.Error("post insert failed", zap.Error(err))
		return Post{}, fmt.Errorf("posts: insert: %w", err)
	}

	s.logger.Info("post created",
		zap.String("post_id", post.ID),
		zap.String("slug", post.Slug))
	return post, nil
}

// ListRequest parameterizes the post listing.
type ListRequest struct {
	Cursor string
	Limit  int
	Search string
	Tag    string
}

// ListResult is one page of the listing with the cursor for the next page.
type ListResult struct {
	Page       []PostWithAuthor
	NextCursor string
	IsDone     bool
}

// List returns published posts newest first, keyset-paginated on
// (created_at_s, id). Search routes through the full-text index; the tag
// filter matches the stored JSON encoding of the tag.
func (s *Service) List(ctx context.Context, req ListRequest) (ListResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query := s.db.WithContext(ctx).Table("posts").Select("posts.*").
		Where("posts.published = ?", true)

	if search := strings.TrimSpace(req.Search); search != "" {
		query = query.
			Joins("JOIN posts_fts ON posts_fts.rowid = posts.rowid").
			Where("posts_fts MATCH ?", ftsMatchExpression(search))
	}
	if tag := strings.ToLower(strings.TrimSpace(req.Tag)); tag != "" {
		query = query.Where("posts.tags_json LIKE ?", `%"`+tag+`"%`)
	}
	if req.Cursor != "" {
		createdAt, id, err := decodeCursor(req.Cursor)
		if err != nil {
			return ListResult{}, err
		}
		query = query.Where(
			"posts.created_at_s < ? OR (posts.created_at_s = ? AND posts.id < ?)",
			createdAt, createdAt, id,
		)
	}

	var page []Post
	err := query.
		Order("posts.created_at_s DESC, posts.id DESC").
		Limit(limit + 1).
		Find(&page).Error
	if err != nil {
		s.logger.Error("post listing failed", zap.Error(err))
		return ListResult{}, fmt.Errorf("posts: list: %w", err)
	}

	result := ListResult{IsDone: true}
	if len(page) > limit {
		page = page[:limit]
		last := page[len(page)-1]
		result.NextCursor = encodeCursor(last.CreatedAtSeconds, last.ID)
		result.IsDone = false
	}

	withAuthors, err := s.attachAuthors(ctx, page)
	if err != nil {
		return ListResult{}, err
	}
	result.Page = withAuthors
	return result, nil
}

// GetBySlug returns the published post with the given slug, author attached.
func (s *Service) GetBySlug(ctx context.Context, slug string) (PostWithAuthor, error) {
	var post Post
	err := s.db.WithContext(ctx).
		Where("slug = ? AND published = ?", strings.TrimSpace(slug), true).
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PostWithAuthor{}, ErrPostNotFound
	}
	if err != nil {
		return PostWithAuthor{}, fmt.Errorf("posts: slug lookup: %w", err)
	}

	withAuthors, err := s.attachAuthors(ctx, []Post{post})
	if err != nil {
		return PostWithAuthor{}, err
	}
	return withAuthors[0], nil
}

// Get returns a post by id regardless of author, published only.
func (s *Service) Get(ctx context.Context, postID string) (Post, error) {
	var post Post
	err := s.db.WithContext(ctx).
		Where("id = ? AND published = ?", postID, true).
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrPostNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("posts: lookup: %w", err)
	}
	return post, nil
}

// AllTags aggregates tag usage across published posts, most used first.
func (s *Service) AllTags(ctx context.Context) ([]TagCount, error) {
	var published []Post
	err := s.db.WithContext(ctx).
		Select("tags_json").
		Where("published = ?", true).
		Find(&published).Error
	if err != nil {
		return nil, fmt.Errorf("posts: tag aggregation: %w", err)
	}

	counts := make(map[string]int)
	for _, post := range published {
		for _, tag := range post.Tags() {
			counts[tag]++
		}
	}

	tags := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		tags = append(tags, TagCount{Tag: tag, Count: count})
	}
	sortTagCounts(tags)
	return tags, nil
}

// attachAuthors resolves author attribution for a page of posts in two batch
// queries instead of one pair per row.
func (s *Service) attachAuthors(ctx context.Context, page []Post) ([]PostWithAuthor, error) {
	authors, err := NewAuthorResolver(s.db).Resolve(ctx, authorIDs(page))
	if err != nil {
		return nil, err
	}

	withAuthors := make([]PostWithAuthor, 0, len(page))
	for _, post := range page {
		withAuthors = append(withAuthors, PostWithAuthor{
			Post:   post,
			Author: authors[post.AuthorID],
		})
	}
	return withAuthors, nil
}

func authorIDs(page []Post) []string {
	seen := make(map[string]struct{}, len(page))
	ids := make([]string, 0, len(page))
	for _, post := range page {
		if _, dup := seen[post.AuthorID]; dup {
			continue
		}
		seen[post.AuthorID] = struct{}{}
		ids = append(ids, post.AuthorID)
	}
	return ids
}

// ftsMatchExpression quotes each search term so user input cannot inject FTS
// query syntax.
func ftsMatchExpression(search string) string {
	terms := strings.Fields(search)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func encodeCursor(createdAtSeconds int64, id string) string {
	raw := strconv.FormatInt(createdAtSeconds, 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (int64, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	createdAtText, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return 0, "", ErrInvalidCursor
	}
	createdAt, err := strconv.ParseInt(createdAtText, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return createdAt, id, nil
}

func sortTagCounts(tags []TagCount) {
	// Count descending, then tag ascending for a stable sidebar ordering.
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})
}
