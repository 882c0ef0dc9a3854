package model

import "time"

// Comment is a single remark on a snippet. ParentID links replies to the
// comment they answer; nil means a top-level comment.
//
// Replies is never stored. It is filled by service.BuildCommentTree.
type Comment struct {
	ID        string     `json:"id"           db:"id"`
	SnippetID string     `json:"cssnippet_id" db:"snippet_id"`
	UserID    string     `json:"user_id"      db:"user_id"`
	Username  string     `json:"username"     db:"username"`
	Avatar    string     `json:"avatar"       db:"avatar"`
	Content   string     `json:"content"      db:"content"`
	ParentID  *string    `json:"parent_id"    db:"parent_id"`
	CreatedAt time.Time  `json:"created_at"   db:"created_at"`
	Replies   []*Comment `json:"replies"      db:"-"`
}
