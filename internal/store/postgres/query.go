package postgres

import (
	"fmt"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// appendListOpts adds time bounds on column, the ordering and pagination to
// query. argIdx is the next free placeholder number.
func appendListOpts(query string, args []any, argIdx int, column string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", column, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", column, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY " + column + " DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
