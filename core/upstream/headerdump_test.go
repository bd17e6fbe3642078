package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaderDump(t *testing.T) {
	dump := ParseHeaderDump(`
set-cookie
AWSALB=aaa; Path=/; Expires=Thu, 01 Jan 2026 00:00:00 GMT
set-cookie
sessionid=fresh; HttpOnly
:scheme
https
:authority
cohort.example.org
:path
/api/v2/freeze-2025-05-06/query_tools/preview/?page=1
cookie
sessionid=abc; csrftoken=xyz
referer
https://cohort.example.org/query_tools/
`)

	assert.Equal(t, "https://cohort.example.org/api/v2/freeze-2025-05-06/query_tools/preview/?page=1", dump.URL)
	assert.Equal(t, "https://cohort.example.org/query_tools/", dump.RequestHeaders["referer"])
	assert.Equal(t, map[string]string{"sessionid": "abc", "csrftoken": "xyz"}, dump.RequestCookies)
	assert.Equal(t, map[string]string{"AWSALB": "aaa", "sessionid": "fresh"}, dump.SetCookies)
}

func TestParseHeaderDumpPartial(t *testing.T) {
	dump := ParseHeaderDump("accept\napplication/json")
	assert.Empty(t, dump.URL)
	assert.Empty(t, dump.RequestCookies)
	assert.Equal(t, "application/json", dump.RequestHeaders["accept"])

	empty := ParseHeaderDump("")
	assert.Empty(t, empty.RequestHeaders)
}

func TestPreviewRowsIgnoresMalformedEntries(t *testing.T) {
	rows := PreviewRows(map[string]any{
		"extended_table_def": map[string]any{
			"fields": []any{
				map[string]any{"concept_name": "Blinded ID", "label": "ignored"},
				map[string]any{"label": "Gender"},
				"not a field",
			},
		},
		"data": []any{
			[]any{"1-100", "Female", "overflow"},
			"not a row",
			[]any{"1-101"},
		},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "1-100", rows[0]["Blinded ID"])
	assert.Equal(t, "Female", rows[0]["Gender"])
	assert.Equal(t, "1-101", rows[1]["Blinded ID"])
	_, hasGender := rows[1]["Gender"]
	assert.False(t, hasGender)
}
