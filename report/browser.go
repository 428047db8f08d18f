package report

import "strings"

// UnknownBrowser is returned when no rule matches a user agent.
const UnknownBrowser = "Unknown Browser"

// browserRule names a browser when every required substring is present
// and takes its version from the token following marker.
type browserRule struct {
	name     string
	marker   string
	requires []string
}

// Order matters: Chrome user agents also carry "Safari", so Chrome must
// be tried before Safari.
var browserRules = []browserRule{
	{name: "Chrome", marker: "Chrome/"},
	{name: "Firefox", marker: "Firefox/"},
	{name: "Safari", marker: "Version/", requires: []string{"Safari"}},
}

// ParseBrowser returns "<Browser> <version>" for a user agent string,
// or UnknownBrowser.
func ParseBrowser(ua string) string {
	for _, rule := range browserRules {
		if version, ok := rule.match(ua); ok {
			return rule.name + " " + version
		}
	}

	return UnknownBrowser
}

func (r browserRule) match(ua string) (string, bool) {
	for _, s := range r.requires {
		if !strings.Contains(ua, s) {
			return "", false
		}
	}

	_, rest, ok := strings.Cut(ua, r.marker)
	if !ok {
		return "", false
	}

	version, _, _ := strings.Cut(rest, " ")

	return version, true
}
