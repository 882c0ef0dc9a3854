package model

import "time"

// Snippet status values. "active" means publicly listed.
const (
	StatusActive  = "active"
	StatusPrivate = "private"
)

// Length ceilings enforced on create and update.
const (
	MaxCSSLength     = 10000
	MaxHTMLLength    = 5000
	MaxCommentLength = 1000
)

// Popularity weights. The score is computed at query time and never stored.
const (
	LikeWeight       = 0.5
	CollectionWeight = 0.3
	CommentWeight    = 0.2
)

// Snippet is a published piece of CSS (and optional HTML preview markup).
//
// The three *_count fields are denormalized: they must always equal the
// number of rows in likes, collections and comments for this snippet. Only
// the ledger and comment stores write them, and always in the same
// transaction as the row they count.
//
// Username and Avatar are joined from the owner's user row. Tags, IsLiked and
// IsCollected are filled in by the service layer after the query (db:"-").
type Snippet struct {
	ID               string    `json:"id"                db:"id"`
	Title            string    `json:"title"             db:"title"`
	Description      string    `json:"description"       db:"description"`
	CSSContent       string    `json:"css_content"       db:"css_content"`
	HTMLContent      string    `json:"html_content"      db:"html_content"`
	UserID           string    `json:"user_id"           db:"user_id"`
	Username         string    `json:"username"          db:"username"`
	Avatar           string    `json:"avatar"            db:"avatar"`
	CreatedAt        time.Time `json:"created_at"        db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"        db:"updated_at"`
	LikesCount       int       `json:"likes_count"       db:"likes_count"`
	CollectionsCount int       `json:"collections_count" db:"collections_count"`
	CommentsCount    int       `json:"comments_count"    db:"comments_count"`
	Status           string    `json:"status"            db:"status"`

	Tags        []string `json:"tags"        db:"-"`
	IsLiked     bool     `json:"isLiked"     db:"-"`
	IsCollected bool     `json:"isCollected" db:"-"`
}

// Score is the popularity ranking value used by the popular feed and search.
func (s *Snippet) Score() float64 {
	return float64(s.LikesCount)*LikeWeight +
		float64(s.CollectionsCount)*CollectionWeight +
		float64(s.CommentsCount)*CommentWeight
}

// IsPublic reports whether the snippet shows up in public feeds.
func (s *Snippet) IsPublic() bool {
	return s.Status != StatusPrivate
}

// SnippetVersion is an immutable snapshot appended on every create and update.
type SnippetVersion struct {
	ID          string    `json:"id"           db:"id"`
	SnippetID   string    `json:"cssnippet_id" db:"snippet_id"`
	CSSContent  string    `json:"css_content"  db:"css_content"`
	HTMLContent string    `json:"html_content" db:"html_content"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
}
