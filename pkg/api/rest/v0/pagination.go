package v0_rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/meower-media/feedsync/pkg/posts"
)

const (
	defaultPaginationLimit = 10
	maxPaginationLimit     = 100
)

type PaginationOpts struct {
	Request *http.Request
}

// Page is 0-based.
func (p PaginationOpts) Page() int64 {
	page, err := strconv.ParseInt(p.Request.URL.Query().Get("page"), 10, 64)
	if err == nil && page >= 0 {
		return page
	}

	return 0
}

func (p PaginationOpts) Limit() int64 {
	limit, err := strconv.ParseInt(p.Request.URL.Query().Get("limit"), 10, 64)
	if err == nil && limit > 0 {
		// limit the limit to 100
		if limit > maxPaginationLimit {
			return maxPaginationLimit
		}

		return limit
	}

	return defaultPaginationLimit
}

// Date returns the requested feed day. An absent date means every day; a
// malformed one is reported as not ok.
func (p PaginationOpts) Date(loc *time.Location) (string, bool) {
	date := p.Request.URL.Query().Get("date")
	if date == "" {
		return "", true
	}
	if loc == nil {
		loc = time.UTC
	}
	if _, err := time.ParseInLocation(posts.DateLayout, date, loc); err != nil {
		return "", false
	}
	return date, true
}
