package model

// Pagination describes one page of a feed.
// Pages is ceil(Total/Limit).
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination computes the page count for total items at limit per page.
func NewPagination(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}

// SnippetPage is the response shape shared by every paginated snippet feed.
type SnippetPage struct {
	Snippets   []Snippet  `json:"cssnippets"`
	Pagination Pagination `json:"pagination"`
}
