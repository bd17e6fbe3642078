package upstream

import "strings"

// HeaderDump is the parsed form of a DevTools-style raw header dump, where
// keys and values alternate line by line.
type HeaderDump struct {
	// RequestHeaders holds the request headers with lowercased names,
	// including the :scheme/:authority/:path pseudo-headers.
	RequestHeaders map[string]string
	// RequestCookies is parsed from the request Cookie header.
	RequestCookies map[string]string
	// SetCookies holds the first name=value pair of each Set-Cookie line.
	SetCookies map[string]string
	// URL is reassembled from the pseudo-headers when all three are present.
	URL string
}

// ParseHeaderDump parses a header dump copied out of browser dev tools:
//
//	set-cookie
//	AWSALB=...; Path=/
//	:authority
//	example.com
//	cookie
//	a=1; b=2
func ParseHeaderDump(text string) HeaderDump {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	dump := HeaderDump{
		RequestHeaders: make(map[string]string),
		RequestCookies: make(map[string]string),
		SetCookies:     make(map[string]string),
	}

	for i := 0; i < len(lines); i += 2 {
		key := lines[i]
		value := ""
		if i+1 < len(lines) {
			value = lines[i+1]
		}
		lk := strings.ToLower(key)
		if lk == "set-cookie" {
			if name, val, ok := parseSetCookie(value); ok {
				dump.SetCookies[name] = val
			}
			continue
		}
		dump.RequestHeaders[lk] = value
	}

	if cookie, ok := dump.RequestHeaders["cookie"]; ok {
		dump.RequestCookies = ParseCookieHeader(cookie)
	}

	scheme := strings.TrimSpace(dump.RequestHeaders[":scheme"])
	authority := strings.TrimSpace(dump.RequestHeaders[":authority"])
	path := strings.TrimSpace(dump.RequestHeaders[":path"])
	if scheme != "" && authority != "" && path != "" {
		dump.URL = scheme + "://" + authority + path
	}
	return dump
}

func parseSetCookie(value string) (string, string, bool) {
	first, _, _ := strings.Cut(value, ";")
	first = strings.TrimSpace(first)
	if first == "" {
		return "", "", false
	}
	name, val, found := strings.Cut(first, "=")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(val), true
}
