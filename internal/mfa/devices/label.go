package devices

import "strings"

type uaRule struct {
	needle string
	name   string
}

// El orden importa: Edge y Opera incluyen "Chrome", Chrome incluye "Safari",
// Android incluye "Linux".
var (
	browsers = []uaRule{
		{"Edg/", "Edge"},
		{"OPR/", "Opera"},
		{"Firefox/", "Firefox"},
		{"Chrome/", "Chrome"},
		{"Safari/", "Safari"},
		{"curl/", "curl"},
	}
	systems = []uaRule{
		{"Windows", "Windows"},
		{"Android", "Android"},
		{"iPhone", "iOS"},
		{"iPad", "iPadOS"},
		{"Mac OS X", "macOS"},
		{"CrOS", "ChromeOS"},
		{"Linux", "Linux"},
	}
)

func match(ua string, rules []uaRule) string {
	for _, r := range rules {
		if strings.Contains(ua, r.needle) {
			return r.name
		}
	}
	return ""
}

// LabelFromUserAgent arma una etiqueta legible, p.ej. "Firefox on Linux".
func LabelFromUserAgent(ua string) string {
	b, sys := match(ua, browsers), match(ua, systems)
	switch {
	case b != "" && sys != "":
		return b + " on " + sys
	case b != "":
		return b
	case sys != "":
		return sys + " device"
	default:
		return "Unknown device"
	}
}
