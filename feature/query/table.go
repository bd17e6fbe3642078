package query

import "cohort-copilot/core/filter"

// defaultContextColumns are good context columns to front-load when the
// dataset has them.
var defaultContextColumns = []string{
	"Blinded ID",
	"Cohort Source",
	"Maternal Age",
	"Paternal Age",
	"Gender",
	"Enrollment Site",
}

// BuildResultsTable renders matched rows into a column list and string
// cells. Columns named in the spec come first, then the default context
// columns, then everything else in row order. maxColumns of 0 keeps all
// columns; the truncated flag reports whether any were dropped.
func BuildResultsTable(rows []map[string]any, preferredColumns []string, maxColumns int) ([]string, [][]string, bool) {
	// Row maps have no stable iteration order, so the trailing columns are
	// sorted to keep the table deterministic.
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	keyOrder := sortedSet(seen)

	var front []string
	inFront := make(map[string]struct{})
	appendFront := func(c string) {
		if _, present := seen[c]; !present {
			return
		}
		if _, dup := inFront[c]; dup {
			return
		}
		inFront[c] = struct{}{}
		front = append(front, c)
	}
	for _, c := range preferredColumns {
		appendFront(c)
	}
	for _, c := range defaultContextColumns {
		appendFront(c)
	}

	all := append([]string{}, front...)
	for _, k := range keyOrder {
		if _, dup := inFront[k]; !dup {
			all = append(all, k)
		}
	}

	selected := all
	if maxColumns > 0 && len(all) > maxColumns {
		selected = all[:maxColumns]
	}
	truncated := len(all) > len(selected)

	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(selected))
		for i, c := range selected {
			cells[i] = filter.CellText(row[c])
		}
		tableRows = append(tableRows, cells)
	}
	return selected, tableRows, truncated
}
