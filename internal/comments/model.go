package comments

import "github.com/InkwellLabs/inkwell/backend/internal/posts"

// Comment models one entry in a post's discussion thread. ParentID is nil for
// top-level comments; replies point at a comment on the same post.
type Comment struct {
	ID               string  `gorm:"column:id;primaryKey;size:190;not null"`
	PostID           string  `gorm:"column:post_id;size:190;not null;index"`
	AuthorID         string  `gorm:"column:author_id;size:190;not null;index"`
	ParentID         *string `gorm:"column:parent_id;size:190;index"`
	Content          string  `gorm:"column:content;type:text;not null"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// CommentWithAuthor pairs a comment with its denormalized author attribution.
type CommentWithAuthor struct {
	Comment
	Author posts.Author
}
