package postgres

import (
	"fmt"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// query accumulates a SELECT with positional arguments.
type query struct {
	sql  string
	args []any
}

func newQuery(base string) *query {
	return &query{sql: base}
}

// where appends "AND cond", where cond holds a single %d for the argument's
// placeholder index.
func (q *query) where(cond string, v any) {
	q.args = append(q.args, v)
	q.sql += " AND " + fmt.Sprintf(cond, len(q.args))
}

// window restricts created_at to opts.Since/opts.Until.
func (q *query) window(opts domain.ListOpts) {
	if opts.Since != nil {
		q.where("created_at >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		q.where("created_at <= $%d", *opts.Until)
	}
}

func (q *query) orderBy(cols string) {
	q.sql += " ORDER BY " + cols
}

// page appends LIMIT/OFFSET. Non-positive values are left out.
func (q *query) page(opts domain.ListOpts) {
	if opts.Limit > 0 {
		q.args = append(q.args, opts.Limit)
		q.sql += fmt.Sprintf(" LIMIT $%d", len(q.args))
	}
	if opts.Offset > 0 {
		q.args = append(q.args, opts.Offset)
		q.sql += fmt.Sprintf(" OFFSET $%d", len(q.args))
	}
}
