package store

import (
	"strings"
	"testing"
)

func TestBuildWhereEmpty(t *testing.T) {
	sql, args := buildWhere(EntryFilter{}, 0)
	if sql != "" || args != nil {
		t.Errorf("empty filter: sql=%q args=%v", sql, args)
	}
}

func TestBuildWhereAllDimensions(t *testing.T) {
	f := EntryFilter{
		Category:       "Movies",
		Genre:          "Drama",
		Country:        "US",
		Year:           "2019",
		Search:         "exam",
		AllowedRatings: []string{"PG", "PG-13"},
		IncludeUnrated: true,
	}
	sql, args := buildWhere(f, 0)

	for _, want := range []string{
		"LOWER(main_category) = LOWER($1)",
		"sub_category = $2",
		"country = $3",
		"year = $4",
		"title ILIKE '%' || $5 || '%'",
		"(parental_rating = ANY($6) OR ($7 AND parental_rating IS NULL))",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("missing clause %q in %q", want, sql)
		}
	}
	if len(args) != 7 {
		t.Fatalf("args = %d, want 7", len(args))
	}
	if got := args[5].([]string); len(got) != 2 {
		t.Errorf("allow-list arg = %v", got)
	}
	if got := args[6].(bool); !got {
		t.Errorf("include-unrated arg = %v", got)
	}
}

func TestBuildWhereEmptySearchAddsNoClause(t *testing.T) {
	sql, _ := buildWhere(EntryFilter{Category: "Live TV"}, 0)
	if strings.Contains(sql, "ILIKE") {
		t.Errorf("empty search produced a clause: %q", sql)
	}
}

func TestBuildWhereParentalOnlyWhenRequested(t *testing.T) {
	sql, _ := buildWhere(EntryFilter{Category: "Movies"}, 0)
	if strings.Contains(sql, "parental_rating") {
		t.Errorf("parental clause without allow-list: %q", sql)
	}

	sql, args := buildWhere(EntryFilter{IncludeUnrated: true}, 0)
	if !strings.Contains(sql, "parental_rating IS NULL") {
		t.Errorf("include_unrated alone should still filter: %q", sql)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}

func TestBuildWhereArgOffset(t *testing.T) {
	sql, args := buildWhere(EntryFilter{Genre: "Action", Country: "JP"}, 2)
	if !strings.Contains(sql, "sub_category = $3") || !strings.Contains(sql, "country = $4") {
		t.Errorf("offset placeholders wrong: %q", sql)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}

func TestPageClause(t *testing.T) {
	sql, args := pageClause(EntryFilter{Page: 3, PageSize: 20}, 5)
	if !strings.Contains(sql, "ORDER BY title ASC") {
		t.Errorf("missing ordering: %q", sql)
	}
	if !strings.Contains(sql, "LIMIT $6 OFFSET $7") {
		t.Errorf("placeholders: %q", sql)
	}
	if args[0].(int) != 20 || args[1].(int) != 60 {
		t.Errorf("paging args = %v, want [20 60]", args)
	}
}

func TestPageClauseDefaults(t *testing.T) {
	_, args := pageClause(EntryFilter{Page: -1, PageSize: 0}, 0)
	if args[0].(int) != 20 || args[1].(int) != 0 {
		t.Errorf("default paging args = %v", args)
	}
}
