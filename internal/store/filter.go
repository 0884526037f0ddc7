package store

import (
	"fmt"
	"strings"
)

// buildWhere turns a filter into a WHERE clause and its arguments. Both the
// row query and the count query are built from this one predicate, so a page
// and its total can never disagree about which rows qualify.
//
// argOffset is the number of placeholders already consumed by the caller's
// query (vector params and the like); placeholders start at $argOffset+1.
func buildWhere(f EntryFilter, argOffset int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func() int { return argOffset + len(args) + 1 }

	if f.Category != "" {
		conds = append(conds, fmt.Sprintf("LOWER(main_category) = LOWER($%d)", next()))
		args = append(args, f.Category)
	}
	if f.Genre != "" {
		conds = append(conds, fmt.Sprintf("sub_category = $%d", next()))
		args = append(args, f.Genre)
	}
	if f.Country != "" {
		conds = append(conds, fmt.Sprintf("country = $%d", next()))
		args = append(args, f.Country)
	}
	if f.Year != "" {
		conds = append(conds, fmt.Sprintf("year = $%d", next()))
		args = append(args, f.Year)
	}
	if f.Search != "" {
		conds = append(conds, fmt.Sprintf("title ILIKE '%%' || $%d || '%%'", next()))
		args = append(args, f.Search)
	}
	if f.filtersParental() {
		conds = append(conds, fmt.Sprintf(
			"(parental_rating = ANY($%d) OR ($%d AND parental_rating IS NULL))",
			next(), next()+1))
		args = append(args, f.AllowedRatings, f.IncludeUnrated)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// pageClause appends ORDER BY title plus LIMIT/OFFSET placeholders for the
// filter's page. Returns the SQL fragment and the two paging args.
func pageClause(f EntryFilter, argOffset int) (string, []any) {
	limit := f.PageSize
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page < 0 {
		page = 0
	}
	sql := fmt.Sprintf(" ORDER BY title ASC LIMIT $%d OFFSET $%d", argOffset+1, argOffset+2)
	return sql, []any{limit, page * limit}
}
