package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCollectionsFromText(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"by name", "how many people have Labs results", []string{"emrdata_labs"}},
		{"by id", "subjects with emrdata_hpo terms", []string{"emrdata_hpo"}},
		{"plural", "patients with Karyotypes", []string{"karyotype"}},
		{"hyphenated name", "everyone with an ICD-10-CM code", []string{"icd_10_cm"}},
		{
			"multiple",
			"RxNorm medications and Labs for female subjects",
			[]string{"emrdata_labs", "emrdata_rxnorm"},
		},
		{"bare subject word ignored", "all subjects older than 20", nil},
		{"explicit subject collection", "rows from the subject collection", []string{"subject"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCollectionsFromText(tt.query))
		})
	}
}

func TestNormalizeCollectionList(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		want  []string
	}{
		{"ids pass through", []string{"emrdata_labs"}, []string{"emrdata_labs"}},
		{"names resolve", []string{"Labs", "RxNorm"}, []string{"emrdata_labs", "emrdata_rxnorm"}},
		{"comma separated", []string{"Labs, Karyotype"}, []string{"emrdata_labs", "karyotype"}},
		{"and separated", []string{"Labs and RxNorm"}, []string{"emrdata_labs", "emrdata_rxnorm"}},
		{"parenthetical", []string{"Labs (emrdata_labs)"}, []string{"emrdata_labs"}},
		{"spaces to underscores", []string{"fish result"}, []string{"fish_result"}},
		{"unknown dropped", []string{"Bananas"}, nil},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCollectionList(tt.items))
		})
	}
}

func TestInferCollectionFieldMap(t *testing.T) {
	fields := []string{"Lab Results", "HPO Terms", "Gender", "Maternal Age"}
	m := inferCollectionFieldMap(fields)

	assert.Equal(t, []string{"Lab Results"}, m["emrdata_labs"])
	assert.Equal(t, []string{"HPO Terms"}, m["emrdata_hpo"])
	assert.Equal(t, []string{"Maternal Age"}, m["pregnancy_birth_history"])
	assert.NotContains(t, m, "emrdata_cpt")
}

func TestApplyLocalCollectionFilters(t *testing.T) {
	fields := []string{"Blinded ID", "Lab Results", "HPO Terms"}
	rows := []map[string]any{
		{"Blinded ID": "1-100", "Lab Results": "CBC", "HPO Terms": nil},
		{"Blinded ID": "1-101", "Lab Results": "", "HPO Terms": "HP:0001631"},
		{"Blinded ID": "1-102", "Lab Results": nil, "HPO Terms": nil},
	}

	filtered, applied, unavailable := ApplyLocalCollectionFilters(rows, []string{"emrdata_labs"}, fields)
	assert.Len(t, filtered, 1)
	assert.Equal(t, "1-100", filtered[0]["Blinded ID"])
	assert.Equal(t, []string{"emrdata_labs"}, applied)
	assert.Empty(t, unavailable)

	// Requested collection with no matching fields is reported, rows pass.
	filtered, applied, unavailable = ApplyLocalCollectionFilters(rows, []string{"emrdata_cpt"}, fields)
	assert.Len(t, filtered, 3)
	assert.Empty(t, applied)
	assert.Equal(t, []string{"emrdata_cpt"}, unavailable)

	// "subject" is the root collection; it never reduces rows.
	filtered, applied, unavailable = ApplyLocalCollectionFilters(rows, []string{"subject", "emrdata_cpt"}, fields)
	assert.Len(t, filtered, 3)
	assert.Equal(t, []string{"subject"}, applied)
	assert.Equal(t, []string{"emrdata_cpt"}, unavailable)

	// No valid collections requested.
	filtered, applied, unavailable = ApplyLocalCollectionFilters(rows, nil, fields)
	assert.Len(t, filtered, 3)
	assert.Empty(t, applied)
	assert.Empty(t, unavailable)
}

func TestCatalogPromptLines(t *testing.T) {
	lines := CatalogPromptLines()
	assert.Len(t, lines, len(SiteCollections))
	assert.Contains(t, lines, "- emrdata_labs (Labs)")
}
