package device

import (
	"regexp"
	"strings"

	"github.com/sajpe/visitgate/internal/model"
)

type osPattern struct {
	name    string
	match   keywordSet
	version *regexp.Regexp
}

// Checked in order; the first keyword hit wins.
var osPatterns = []osPattern{
	{"Windows Phone", keywordSet{"windows phone"}, regexp.MustCompile(`(?i)windows phone(?: os)? ([\d.]+)`)},
	{"Windows", keywordSet{"windows"}, regexp.MustCompile(`(?i)windows nt ([\d.]+)`)},
	{"iOS", keywordSet{"iphone", "ipad", "ipod"}, regexp.MustCompile(`(?i)(?:cpu(?: iphone)? os|iphone os) ([\d_]+)`)},
	{"macOS", keywordSet{"macintosh", "mac os x"}, regexp.MustCompile(`(?i)mac os x ([\d_.]+)`)},
	{"HarmonyOS", keywordSet{"harmonyos"}, regexp.MustCompile(`(?i)harmonyos[/ ]?([\d.]+)`)},
	{"Android", keywordSet{"android"}, regexp.MustCompile(`(?i)android[ /]([\d.]+)`)},
	{"Chrome OS", keywordSet{"cros", "chromeos"}, regexp.MustCompile(`(?i)cros \S+ ([\d.]+)`)},
	{"Linux", keywordSet{"linux", "x11"}, nil},
}

// windowsVersions maps NT kernel versions to marketing names.
var windowsVersions = map[string]string{
	"10.0": "10",
	"6.3":  "8.1",
	"6.2":  "8",
	"6.1":  "7",
	"6.0":  "Vista",
	"5.1":  "XP",
}

var linuxDistros = keywordSet{"ubuntu", "fedora", "debian", "mint"}

// ParseOS returns the operating system name and version, e.g. "Android 14".
func ParseOS(ua string) string {
	lower := strings.ToLower(ua)
	if lower == "" {
		return model.UnknownValue
	}

	for _, p := range osPatterns {
		if !p.match.contains(lower) {
			continue
		}
		if p.name == "Linux" {
			for _, distro := range linuxDistros {
				if strings.Contains(lower, distro) {
					return titleCase(distro)
				}
			}
			return p.name
		}

		version := submatch(ua, p.version)
		version = strings.ReplaceAll(version, "_", ".")
		if p.name == "Windows" {
			if named, ok := windowsVersions[version]; ok {
				version = named
			}
		}
		return strings.TrimSpace(p.name + " " + version)
	}
	return model.UnknownValue
}

type browserPattern struct {
	name     string
	keywords keywordSet
	excludes keywordSet
	version  *regexp.Regexp
}

// Order matters: many browsers embed "Chrome" and "Safari" tokens.
var browserPatterns = []browserPattern{
	{name: "Edge", keywords: keywordSet{"edg/", "edge/", "edga/", "edgios/"}, version: regexp.MustCompile(`(?i)(?:edge|edg|edga|edgios)/([\d.]+)`)},
	{name: "Samsung Internet", keywords: keywordSet{"samsungbrowser"}, version: regexp.MustCompile(`(?i)samsungbrowser/([\d.]+)`)},
	{name: "UC Browser", keywords: keywordSet{"ucbrowser"}, version: regexp.MustCompile(`(?i)ucbrowser/([\d.]+)`)},
	{name: "Opera", keywords: keywordSet{"opr/", "opera"}, version: regexp.MustCompile(`(?i)(?:opr|opera)[/ ]([\d.]+)`)},
	{name: "Yandex", keywords: keywordSet{"yabrowser"}, version: regexp.MustCompile(`(?i)yabrowser/([\d.]+)`)},
	{name: "Firefox", keywords: keywordSet{"firefox/", "fxios/"}, version: regexp.MustCompile(`(?i)(?:firefox|fxios)/([\d.]+)`)},
	{name: "Chrome", keywords: keywordSet{"chrome/", "crios/"}, version: regexp.MustCompile(`(?i)(?:chrome|crios)/([\d.]+)`)},
	{name: "Safari", keywords: keywordSet{"safari/"}, excludes: keywordSet{"chrome", "android"}, version: regexp.MustCompile(`(?i)version/([\d.]+)`)},
	{name: "Android Browser", keywords: keywordSet{"android"}, version: regexp.MustCompile(`(?i)version/([\d.]+)`)},
}

// ParseBrowser returns the browser name and version, e.g. "Chrome 120.0.6099.43".
func ParseBrowser(ua string) string {
	lower := strings.ToLower(ua)
	if lower == "" {
		return model.UnknownValue
	}

	for _, p := range browserPatterns {
		if !p.keywords.contains(lower) || p.excludes.contains(lower) {
			continue
		}
		return strings.TrimSpace(p.name + " " + submatch(ua, p.version))
	}
	return model.UnknownValue
}

func submatch(s string, re *regexp.Regexp) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	if len(m[1]) > 20 {
		return m[1][:20]
	}
	return m[1]
}
