package directory

import "strings"

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100

	defaultSortField = "created_at"
)

// sortFields whitelists sortable columns. Anything else falls back to
// created_at instead of erroring.
var sortFields = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"email":      {},
	"first_name": {},
	"last_name":  {},
	"role":       {},
	"status":     {},
}

// SearchQuery is the caller-supplied listing request, already
// shape-validated by the transport layer.
type SearchQuery struct {
	Page           int
	Limit          int
	SortBy         string
	SortOrder      string // ASC or DESC, default DESC
	IncludeDeleted bool
	Role           *Role
	Status         *Status
	FirstName      string
	LastName       string
	Search         string
}

// Filter is the normalized, scope-applied predicate handed to the
// store. It is the product of BuildFilter and carries everything the
// store needs; stores must not re-derive scope on their own.
type Filter struct {
	// MatchNone forces an empty result set. Used when the caller asked
	// for a role outside its scope: the query must return zero rows
	// rather than an error, so existence is never confirmed.
	MatchNone bool

	// Roles restricts results to these roles. Empty means unrestricted
	// (only reachable through an AllRoles scope).
	Roles []Role

	// SupervisorID, when set, must hold for every returned record and
	// must be ANDed into every branch of any free-text search.
	SupervisorID string

	Status         *Status
	FirstName      string
	LastName       string
	Search         string
	IncludeDeleted bool

	SortBy   string
	SortDesc bool
	Offset   int
	Limit    int
}

// Page is a paginated listing result.
type Page struct {
	Data []*Record `json:"data"`
	Meta PageMeta  `json:"meta"`
}

// PageMeta carries pagination bookkeeping.
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

// BuildFilter combines the caller's scope with the search request.
// Pure; all authorization decisions for reads happen here.
func BuildFilter(scope AccessScope, q SearchQuery) Filter {
	f := Filter{
		SupervisorID:   scope.SupervisorID,
		Status:         q.Status,
		FirstName:      strings.TrimSpace(q.FirstName),
		LastName:       strings.TrimSpace(q.LastName),
		Search:         strings.TrimSpace(q.Search),
		IncludeDeleted: q.IncludeDeleted,
	}

	switch {
	case q.Role != nil && !scope.AllowsRole(*q.Role):
		// Requested role outside the scope: impossible-match, not an
		// error. Zero rows leak nothing.
		f.MatchNone = true
	case q.Role != nil:
		f.Roles = []Role{*q.Role}
	case !scope.AllRoles:
		f.Roles = append(f.Roles, scope.Roles...)
		if len(f.Roles) == 0 {
			f.MatchNone = true
		}
	}

	page := q.Page
	if page < 1 {
		page = defaultPage
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	f.Offset = (page - 1) * limit
	f.Limit = limit

	f.SortBy = normalizeSortField(q.SortBy)
	f.SortDesc = !strings.EqualFold(strings.TrimSpace(q.SortOrder), "ASC")

	return f
}

func normalizeSortField(field string) string {
	field = strings.TrimSpace(field)
	if _, ok := sortFields[field]; ok {
		return field
	}
	return defaultSortField
}

// PageOf assembles the listing response for the given filter results.
func PageOf(records []*Record, total, offset, limit int) Page {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	if records == nil {
		records = []*Record{}
	}
	return Page{
		Data: records,
		Meta: PageMeta{
			Total:      total,
			Page:       offset/limit + 1,
			Limit:      limit,
			TotalPages: totalPages,
		},
	}
}
