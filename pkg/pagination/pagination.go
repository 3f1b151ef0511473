package pagination

import "github.com/jfuertes/subman-backend/pkg/types"

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows any list query can request.
	MaxLimit = 100
)

// Params holds page/limit pagination inputs from controllers.
type Params struct {
	Page  int
	Limit int
}

// Normalize enforces sane page and limit values.
func (p Params) Normalize() Params {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Params) Offset() int {
	normalized := p.Normalize()
	return (normalized.Page - 1) * normalized.Limit
}

// Meta builds the response metadata for a total row count.
func Meta(total int64, params Params) *types.PaginationMeta {
	normalized := params.Normalize()
	totalPages := int(total) / normalized.Limit
	if int(total)%normalized.Limit != 0 {
		totalPages++
	}
	return &types.PaginationMeta{
		Total:      total,
		Page:       normalized.Page,
		Limit:      normalized.Limit,
		TotalPages: totalPages,
	}
}
