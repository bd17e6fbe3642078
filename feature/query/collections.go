package query

import (
	"regexp"
	"sort"
	"strings"
)

// Collection is one site collection as the cohort API names it.
type Collection struct {
	PermanentID string
	Name        string
	Plural      string
}

// SiteCollections is the catalog of collections the cohort site exposes.
var SiteCollections = []Collection{
	{"cmri_data", "cmri_data", "cmri_datas"},
	{"copy_number_result", "Copy Number Result", "Copy Number Results"},
	{"emrdata_cpt", "CPT", "CPTs"},
	{"emrdata_computed_phenotype", "emrdata_computed_phenotype", "emrdata_computed_phenotypes"},
	{"emrdata_echo", "emrdata_echo", "emrdata_echos"},
	{"emrdata_ipccc", "emrdata_ipccc", "emrdata_ipcccs"},
	{"emrdata_socialdeprivation", "emrdata_socialdeprivation", "emrdata_socialdeprivations"},
	{"emrdata_vitals", "emrdata_vitals", "emrdata_vitalss"},
	{"emrdata_encounters", "Encounters", "Encounterss"},
	{"fish_result", "Fish Result", "Fish Results"},
	{"fyler_diagnoses", "Fyler Diagnoses", "Fyler Diagnosess"},
	{"genomics_analysis", "Genomics Analysis", "Genomics Analysiss"},
	{"genomics_data", "Genomics Data", "Genomics Datas"},
	{"genomics_metadata", "Genomics Metadata", "Genomics Metadatas"},
	{"emrdata_hpo", "HPO", "HPOs"},
	{"icd_10_cm", "ICD-10-CM", "ICD-10-CMs"},
	{"icd_10_pcs", "ICD-10-PCS", "ICD-10-PCSs"},
	{"icd_9_cm", "ICD-9-CM", "ICD-9-CMs"},
	{"icd_9_pcs", "ICD-9-PCS", "ICD-9-PCSs"},
	{"karyotype", "Karyotype", "Karyotypes"},
	{"emrdata_labs", "Labs", "Labss"},
	{"microarray_result", "Microarray Result", "Microarray Results"},
	{"mutation_result", "Mutation Result", "Mutation Results"},
	{"other_genetic_test_result", "Other Genetic Test Result", "Other Genetic Test Results"},
	{"outcomes_one", "Outcomes One", "Outcomes Ones"},
	{"outcomes_over_one", "Outcomes Over One", "Outcomes Over Ones"},
	{"outcomes_survey", "Outcomes Survey", "Outcomes Surveys"},
	{"emrdata_phecode", "Phecode", "Phecodes"},
	{"pregnancy_birth_history", "Pregnancy Birth History", "Pregnancy Birth Historys"},
	{"emrdata_rxnorm", "RxNorm", "RxNorms"},
	{"sample", "Sample", "Samples"},
	{"subject", "Subject", "Subjects"},
}

// fieldHints maps a site collection to substrings of local flat-row field
// names that indicate the row carries data from that collection.
var fieldHints = map[string][]string{
	"sample":                    {"sample", "dna sample"},
	"emrdata_hpo":               {"hpo"},
	"genomics_data":             {"genotyping", "wes", "wgs", "whole exome", "whole genome", "rna-seq", "resequencing", "lrwgs", "topmed", "trio"},
	"genomics_analysis":         {"genotyping", "wes", "wgs", "whole exome", "whole genome", "rna-seq", "resequencing", "lrwgs", "topmed", "trio"},
	"mutation_result":           {"genotyping", "mutation", "resequencing"},
	"other_genetic_test_result": {"genotyping", "mips", "microarray", "karyotype", "fish", "resequencing"},
	"emrdata_labs":              {"lab"},
	"emrdata_rxnorm":            {"rxnorm", "medication"},
	"emrdata_phecode":           {"phecode"},
	"emrdata_vitals":            {"vital", "bmi", "heart rate", "blood pressure"},
	"emrdata_encounters":        {"encounter", "visit"},
	"outcomes_one":              {"outcome", "death", "hearing"},
	"outcomes_over_one":         {"outcome", "death", "hearing"},
	"outcomes_survey":           {"survey", "questionnaire"},
	"pregnancy_birth_history":   {"maternal", "paternal", "birth", "pregnancy"},
	"emrdata_cpt":               {"cpt"},
}

var (
	collectionIDs      map[string]struct{}
	collectionNameByID map[string]string
	aliasToID          map[string]string

	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
	parensRe   = regexp.MustCompile(`\([^)]*\)`)
	innerRe    = regexp.MustCompile(`\(([^)]+)\)`)
	splitRe    = regexp.MustCompile(`(?i),|;|\band\b|\bor\b`)
)

func init() {
	collectionIDs = make(map[string]struct{}, len(SiteCollections))
	collectionNameByID = make(map[string]string, len(SiteCollections))
	for _, c := range SiteCollections {
		collectionIDs[c.PermanentID] = struct{}{}
		collectionNameByID[c.PermanentID] = c.Name
	}
	aliasToID = buildAliasMap()
}

func normalizeForMatch(text string) string {
	return strings.TrimSpace(nonAlnumRe.ReplaceAllString(strings.ToLower(text), " "))
}

func buildAliasMap() map[string]string {
	aliases := make(map[string]string)
	for _, c := range SiteCollections {
		names := map[string]struct{}{
			c.PermanentID: {},
			c.Name:        {},
			c.Plural:      {},
			strings.ReplaceAll(c.PermanentID, "_", " "): {},
		}
		// "subject"/"subjects" as raw words are too broad for NL parsing,
		// so the root collection only matches explicit phrasings.
		if c.PermanentID == "subject" {
			names = map[string]struct{}{
				"subject collection": {},
				"subject records":    {},
				"root subject":       {},
			}
		}
		for n := range names {
			if norm := normalizeForMatch(n); norm != "" {
				aliases[norm] = c.PermanentID
			}
		}
	}
	return aliases
}

// ExtractCollectionsFromText finds collection mentions in a free-text query
// using known IDs and names.
func ExtractCollectionsFromText(nlQuery string) []string {
	q := normalizeForMatch(nlQuery)
	if q == "" {
		return nil
	}
	padded := " " + q + " "

	found := make(map[string]struct{})
	for alias, cid := range aliasToID {
		if strings.Contains(padded, " "+alias+" ") {
			found[cid] = struct{}{}
		}
	}
	return sortedSet(found)
}

func resolveCollectionID(value string) (string, bool) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return "", false
	}
	if _, ok := collectionIDs[raw]; ok {
		return raw, true
	}

	candidates := []string{raw}
	if without := strings.TrimSpace(parensRe.ReplaceAllString(raw, " ")); without != "" && without != raw {
		candidates = append(candidates, without)
	}
	for _, m := range innerRe.FindAllStringSubmatch(raw, -1) {
		if inner := strings.TrimSpace(m[1]); inner != "" {
			candidates = append(candidates, inner)
		}
	}

	for _, cand := range candidates {
		norm := normalizeForMatch(cand)
		if norm == "" {
			continue
		}
		if cid, ok := aliasToID[norm]; ok {
			return cid, true
		}
		maybeID := strings.ReplaceAll(norm, " ", "_")
		if _, ok := collectionIDs[maybeID]; ok {
			return maybeID, true
		}
	}
	return "", false
}

// NormalizeCollectionList resolves a list of free-form collection values
// (possibly comma/and/or separated) into sorted permanent IDs.
func NormalizeCollectionList(items []string) []string {
	out := make(map[string]struct{})
	for _, item := range items {
		for _, part := range splitRe.Split(item, -1) {
			if cid, ok := resolveCollectionID(part); ok {
				out[cid] = struct{}{}
			}
		}
	}
	return sortedSet(out)
}

func isMeaningfulValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// inferCollectionFieldMap maps each hinted collection to the local fields
// whose names match its hints.
func inferCollectionFieldMap(fields []string) map[string][]string {
	out := make(map[string][]string)
	for cid, hints := range fieldHints {
		seen := make(map[string]struct{})
		for _, f := range fields {
			lf := strings.ToLower(f)
			for _, h := range hints {
				if strings.Contains(lf, h) {
					seen[f] = struct{}{}
					break
				}
			}
		}
		if len(seen) > 0 {
			out[cid] = sortedSet(seen)
		}
	}
	return out
}

// ApplyLocalCollectionFilters applies collection scoping heuristically on
// already-matched rows, used when the remote cohort API is unavailable.
// Returns the filtered rows plus the applied and unavailable collections.
func ApplyLocalCollectionFilters(rows []map[string]any, requestedCollections, fields []string) ([]map[string]any, []string, []string) {
	var requested []string
	for _, c := range requestedCollections {
		if _, ok := collectionIDs[c]; ok {
			requested = append(requested, c)
		}
	}
	if len(requested) == 0 {
		return rows, nil, nil
	}

	fieldMap := inferCollectionFieldMap(fields)

	// "subject" is the root collection in the site response, so it does not
	// reduce rows.
	for _, c := range requested {
		if c == "subject" {
			var unavailable []string
			for _, other := range requested {
				if other == "subject" {
					continue
				}
				if _, ok := fieldMap[other]; !ok {
					unavailable = append(unavailable, other)
				}
			}
			return rows, []string{"subject"}, unavailable
		}
	}

	var available, unavailable []string
	for _, c := range requested {
		if _, ok := fieldMap[c]; ok {
			available = append(available, c)
		} else {
			unavailable = append(unavailable, c)
		}
	}
	if len(available) == 0 {
		return rows, nil, unavailable
	}

	rowMatches := func(row map[string]any, cid string) bool {
		for _, k := range fieldMap[cid] {
			if isMeaningfulValue(row[k]) {
				return true
			}
		}
		return false
	}

	filtered := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		for _, cid := range available {
			if rowMatches(r, cid) {
				filtered = append(filtered, r)
				break
			}
		}
	}
	return filtered, available, unavailable
}

// CatalogPromptLines renders the catalog for the translation prompt.
func CatalogPromptLines() []string {
	lines := make([]string, 0, len(SiteCollections))
	for _, c := range SiteCollections {
		lines = append(lines, "- "+c.PermanentID+" ("+c.Name+")")
	}
	return lines
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
