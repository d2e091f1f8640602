package posts

import (
	"encoding/json"
	"regexp"
	"strings"
)

const excerptLength = 200

// Post models a published or draft blog entry. Tags are stored as a JSON
// array so the list endpoint can filter without a join table; the slug is the
// public lookup key.
type Post struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Title            string `gorm:"column:title;size:200;not null"`
	Slug             string `gorm:"column:slug;size:200;not null;uniqueIndex"`
	Content          string `gorm:"column:content;type:text;not null"`
	Excerpt          string `gorm:"column:excerpt;size:260;not null"`
	TagsJSON         string `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	AuthorID         string `gorm:"column:author_id;size:190;not null;index"`
	Published        bool   `gorm:"column:published;not null;default:false;index:idx_posts_published_created,priority:1"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_posts_published_created,priority:2"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "posts"
}

// Tags decodes the stored tag list. A corrupt column yields an empty list
// rather than an error; tags are advisory metadata.
func (p Post) Tags() []string {
	var tags []string
	if err := json.Unmarshal([]byte(p.TagsJSON), &tags); err != nil {
		return nil
	}
	return tags
}

// SetTags normalizes and stores the tag list.
func (p *Post) SetTags(tags []string) error {
	cleaned := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		cleaned = append(cleaned, tag)
	}
	encoded, err := json.Marshal(cleaned)
	if err != nil {
		return err
	}
	p.TagsJSON = string(encoded)
	return nil
}

// Author denormalizes the attribution shown with a post or comment.
type Author struct {
	Name  string
	Email string
}

// PostWithAuthor pairs a post with its denormalized author attribution.
type PostWithAuthor struct {
	Post
	Author Author
}

// TagCount reports how many published posts carry a tag.
type TagCount struct {
	Tag   string
	Count int
}

var slugStripPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives the URL slug from a post title: lowercase, runs of
// non-alphanumerics collapsed to single hyphens, edges trimmed.
func Slugify(title string) string {
	slug := slugStripPattern.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}

// MakeExcerpt returns the leading portion of the content for card rendering.
func MakeExcerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLength {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(string(runes[:excerptLength])) + "..."
}
