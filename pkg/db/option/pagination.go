package option

import (
	"github.com/smallbiznis/licensor/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type paginationOption struct {
	page  pagination.Pagination
	alias string
}

// ApplyPagination applies keyset pagination over (created_at, id) descending.
// One extra row is fetched so callers can tell whether another page exists.
// alias qualifies the columns when the statement joins other tables.
func ApplyPagination(page pagination.Pagination, alias ...string) QueryOption {
	opt := paginationOption{page: page}
	if len(alias) > 0 && alias[0] != "" {
		opt.alias = alias[0] + "."
	}
	return opt
}

func (o paginationOption) Apply(stmt *gorm.DB) *gorm.DB {
	size := PageSize(o.page)

	if o.page.PageToken != "" {
		if pos, err := pagination.ParseToken(o.page.PageToken); err == nil {
			stmt = stmt.Where(
				"("+o.alias+"created_at < ?) OR ("+o.alias+"created_at = ? AND "+o.alias+"id < ?)",
				pos.CreatedAt, pos.CreatedAt, pos.ID,
			)
		}
	}
	return stmt.Limit(size + 1)
}

// PageSize clamps the requested page size to [1, 250], defaulting to 10.
func PageSize(page pagination.Pagination) int {
	size := page.PageSize
	if size <= 0 {
		size = 10
	}
	if size > 250 {
		size = 250
	}
	return size
}
