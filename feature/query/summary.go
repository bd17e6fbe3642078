package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"cohort-copilot/core/filter"
)

var countQueryRe = regexp.MustCompile(`\b(how many|count|number of|total)\b`)

// IsCountQuery reports whether the user asked for a count rather than rows.
func IsCountQuery(nlQuery string) bool {
	return countQueryRe.MatchString(strings.ToLower(nlQuery))
}

// countUniquePeople counts distinct subject IDs across the rows. Returns
// -1 when no identifying field exists.
func countUniquePeople(rows []map[string]any) int {
	idField := preferredIDFieldFromRows(rows)
	if idField == "" {
		return -1
	}
	ids := make(map[string]struct{})
	for _, r := range rows {
		if pid := strings.TrimSpace(filter.CellText(r[idField])); pid != "" {
			ids[pid] = struct{}{}
		}
	}
	return len(ids)
}

// detailPreferredKeys are the row fields worth surfacing first when
// summarizing a single subject.
var detailPreferredKeys = []string{
	"Cohort Source",
	"Gender",
	"Maternal Age",
	"Paternal Age",
	"Enrollment Site",
	"Working Group",
	"Consent Group",
	"Relationship",
}

func meaningfulRowPairs(row map[string]any, maxItems int) []string {
	var out []string
	used := make(map[string]struct{})

	for _, key := range detailPreferredKeys {
		if v := row[key]; isMeaningfulValue(v) {
			out = append(out, key+": "+filter.CellText(v))
			used[key] = struct{}{}
		}
		if len(out) >= maxItems {
			return out
		}
	}
	for _, k := range sortedSet(keysOf(row)) {
		if _, ok := used[k]; ok {
			continue
		}
		if v := row[k]; isMeaningfulValue(v) {
			out = append(out, k+": "+filter.CellText(v))
		}
		if len(out) >= maxItems {
			break
		}
	}
	return out
}

func keysOf(row map[string]any) map[string]struct{} {
	out := make(map[string]struct{}, len(row))
	for k := range row {
		out[k] = struct{}{}
	}
	return out
}

// BuildQueryToRunText renders a human-auditable description of the executed
// query.
func BuildQueryToRunText(nlQuery string, requestedCollections, appliedCollections []string, spec map[string]any) string {
	collections := appliedCollections
	if len(collections) == 0 {
		collections = requestedCollections
	}
	collectionPart := strings.Join(collections, ", ")
	if collectionPart == "" {
		collectionPart = "none"
	}
	humanFilter := filter.HumanText(spec)
	if humanFilter == "" {
		humanFilter = "No field constraints"
	}
	specJSON, _ := json.Marshal(spec)
	return fmt.Sprintf("Natural language: %s\nCollections: %s\nField filters: %s\nSpec JSON: %s",
		nlQuery, collectionPart, humanFilter, specJSON)
}

// BuildAssistantSummary writes the conversational answer: a count, a match
// summary, or details for a single subject when the query named one.
func BuildAssistantSummary(nlQuery string, rows []map[string]any, matchedCount int, requestedCollections, appliedCollections, unavailableCollections []string) string {
	var collectionText string
	switch {
	case len(appliedCollections) > 0:
		collectionText = strings.Join(appliedCollections, ", ")
	case len(requestedCollections) > 0:
		collectionText = "the local dataset (requested collections could not be applied)"
	default:
		collectionText = "the current dataset"
	}
	unavailableText := strings.Join(unavailableCollections, ", ")
	isCount := IsCountQuery(nlQuery)

	if matchedCount == 0 && !isCount {
		msg := fmt.Sprintf("I could not find matches for that request in %s.", collectionText)
		if unavailableText != "" {
			msg += fmt.Sprintf(" Some requested collections were not applied: %s.", unavailableText)
		}
		return msg
	}

	uniquePeople := countUniquePeople(rows)
	peopleCount := uniquePeople
	if peopleCount < 0 {
		peopleCount = matchedCount
	}

	subjectID := ExtractSubjectID(nlQuery)
	idField := preferredIDFieldFromRows(rows)
	if subjectID != "" && idField != "" {
		var subjectRow map[string]any
		subjectRowCount := 0
		for _, r := range rows {
			if strings.TrimSpace(filter.CellText(r[idField])) == subjectID {
				if subjectRow == nil {
					subjectRow = r
				}
				subjectRowCount++
			}
		}
		if subjectRow != nil {
			details := strings.Join(meaningfulRowPairs(subjectRow, 8), ", ")
			if details == "" {
				details = "No additional populated fields were found."
			}
			msg := fmt.Sprintf("I found subject %s in %s.", subjectID, collectionText)
			if subjectRowCount > 1 {
				msg += fmt.Sprintf(" There are %d matching rows for this subject.", subjectRowCount)
			}
			msg += " " + details
			if unavailableText != "" {
				msg += fmt.Sprintf(" Some requested collections were not applied: %s.", unavailableText)
			}
			return msg
		}
	}

	if isCount {
		noun := "people"
		verb := "are"
		if peopleCount == 1 {
			noun = "person"
			verb = "is"
		}
		msg := fmt.Sprintf("There %s %d %s matching your query in %s.", verb, peopleCount, noun, collectionText)
		if uniquePeople >= 0 && matchedCount != peopleCount {
			msg += fmt.Sprintf(" That corresponds to %d matching rows.", matchedCount)
		}
		if unavailableText != "" {
			msg += fmt.Sprintf(" Some requested collections were not applied: %s.", unavailableText)
		}
		return msg
	}

	msg := fmt.Sprintf("I found %d matching people in %s.", peopleCount, collectionText)
	if uniquePeople >= 0 && matchedCount != peopleCount {
		msg += fmt.Sprintf(" This corresponds to %d matching rows.", matchedCount)
	}
	if unavailableText != "" {
		msg += fmt.Sprintf(" Some requested collections were not applied: %s.", unavailableText)
	}
	return msg
}
