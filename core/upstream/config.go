package upstream

// Config holds configuration for the cohort preview API connection.
type Config struct {
	// APIBase is the versioned API root, e.g.
	// https://cohort.example.org/api/v2/freeze-2025-05-06. No default: the
	// service refuses to call an upstream it was not pointed at.
	APIBase string `mapstructure:"api_base" default:""`
	// PreviewPath is the preview endpoint path under APIBase.
	PreviewPath string `mapstructure:"preview_path" default:"/query_tools/preview/"`
	// PageSize is the records_per_page used for preview fetches.
	PageSize int `mapstructure:"page_size" default:"38306"`
	// Referer is sent with every request; some deployments check it.
	Referer string `mapstructure:"referer" default:""`
	// CookieHeader is the raw Cookie header carrying the authenticated
	// session, e.g. "sessionid=...; csrftoken=...".
	CookieHeader string `mapstructure:"cookie_header" default:""`
	// TimeoutSeconds is the per-call timeout. Values below 30 are raised to
	// 30 because preview pages are large.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"180"`
}
