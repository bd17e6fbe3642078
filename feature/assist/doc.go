// Package assist translates natural-language queries into filter specs
// using an OpenAI chat model.
//
// The model is instructed to answer with a single JSON object carrying the
// spec, optional notes and optional collection names. The translator is
// deliberately tolerant of prose-wrapped answers (it extracts the first
// balanced JSON object) but strict about the result shape; spec validation
// against the loaded field set happens in the query feature.
package assist
