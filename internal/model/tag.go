package model

// Tag is a label shared across snippets. UsageCount is bumped every time a
// snippet is associated with the tag and is never decremented.
type Tag struct {
	ID         string `json:"id"          db:"id"`
	Name       string `json:"name"        db:"name"`
	UsageCount int    `json:"usage_count" db:"usage_count"`
}
