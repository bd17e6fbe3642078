package assist

import (
	"fmt"
	"strings"
)

// maxPromptFields caps how many field names are spelled out in the prompt
// so a wide dataset does not blow the token budget.
const maxPromptFields = 300

const parserSummary = `Parser logic summary (verbatim structure):
- Spec supports:
  {"and": [<spec|cond>, ...]}
  {"or":  [<spec|cond>, ...]}
  {"not": <spec|cond>}
- Leaf condition is:
  {"field": "<field name>", "op": "<op>", "value": <any>}
  For ops "exists" and "isnull", omit "value".
- Allowed ops: exists, isnull, eq, ne, in, nin, contains, startswith, endswith, regex, gt, gte, lt, lte
- Numeric compares (gt/gte/lt/lte) coerce strings to numbers when possible.`

// BuildPrompt renders the translation prompt: the rules, the parser schema,
// the available field names and the collection catalog.
func BuildPrompt(nlQuery string, fields, collectionLines []string) string {
	fieldList := strings.Join(truncateFields(fields), ", ")

	var b strings.Builder
	b.WriteString(`You convert an English query into a STRICT JSON filter spec for the parser described below.

RULES:
- Output MUST be valid JSON only (no markdown, no commentary).
- Output MUST be an object with keys: "spec" and optional "notes" and optional "collections".
- "spec" MUST follow the parser schema exactly.
- Use ONLY the provided field names exactly as written (case/spacing).
- Prefer "and" to combine multiple constraints.
- If the user asks for "age" without clarifying, pick the most explicit matching field name; add a brief note in "notes".
- If the user asks for site-level collection filters (example: Labs, RxNorm, emrdata_hpo), do not turn those into field conditions.
- Put those collection filters in "collections" as a list of collection permanent_id values.
- If no field constraint is requested, use {"and": []} for "spec".
- Handle natural-language comparators:
  - "older than"/"greater than"/">" -> gt
  - "at least"/">=" -> gte
  - "less than"/"<" -> lt
  - "at most"/"<=" -> lte
- Handle natural-language set logic:
  - "either/or" -> or
  - "not"/"exclude"/"without" -> not or ne/nin where appropriate
- Handle natural-language string logic:
  - "contains"/"includes" -> contains
  - "starts with" -> startswith
  - "ends with" -> endswith

`)
	b.WriteString(parserSummary)
	b.WriteString("\n\nAvailable fields (use exact strings):\n")
	b.WriteString(fieldList)
	b.WriteString("\n\nAvailable site collections (use permanent_id in \"collections\"):\n")
	b.WriteString(strings.Join(collectionLines, "\n"))
	b.WriteString("\n\nUser query:\n")
	b.WriteString(nlQuery)
	return b.String()
}

func truncateFields(fields []string) []string {
	if len(fields) <= maxPromptFields {
		return fields
	}
	out := make([]string, maxPromptFields, maxPromptFields+1)
	copy(out, fields[:maxPromptFields])
	return append(out, fmt.Sprintf("... (+%d more)", len(fields)-maxPromptFields))
}
