package service

import (
	"regexp"
	"strings"
)

// Patterns stripped from submitted CSS. Each one can run script, pull in
// remote styles or smuggle a payload out of the preview iframe.
var unsafeCSS = []*regexp.Regexp{
	regexp.MustCompile(`(?i)expression\([^)]*\)`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)@import[^;]*;`),
	regexp.MustCompile(`(?i)url\(['"]?data:[^)]*['"]?\)`),
}

// FilterCSS removes unsafe constructs and trims the result.
//
// WHY LOOP?
// One removal can splice a new match together: "javajavascript:script:"
// becomes "javascript:" after a single pass. Repeating until nothing
// changes makes FilterCSS(FilterCSS(x)) == FilterCSS(x) for every x. Each
// pass that changes the string makes it shorter, so the loop terminates.
func FilterCSS(css string) string {
	for {
		next := css
		for _, re := range unsafeCSS {
			next = re.ReplaceAllString(next, "")
		}
		next = strings.TrimSpace(next)
		if next == css {
			return next
		}
		css = next
	}
}
