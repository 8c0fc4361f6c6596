// Package device classifies visiting devices from their user agent.
//
// Classification is deterministic and never fails: a missing or malformed
// user agent yields a Desktop profile whose strings are "Unknown".
package device

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sajpe/visitgate/internal/model"
)

// Raw device-type tokens, named after the ones common UA parsers emit.
const (
	TokenMobile   = "mobile"
	TokenTablet   = "tablet"
	TokenSmartTV  = "smarttv"
	TokenConsole  = "console"
	TokenWearable = "wearable"
)

// maxUALength bounds how much of a user agent is inspected.
const maxUALength = 512

type keywordSet []string

func (k keywordSet) contains(s string) bool {
	for _, keyword := range k {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

var (
	tabletKeywords   = keywordSet{"ipad", "tablet", "kindle", "silk", "playbook", "sm-t", "gt-p"}
	mobileKeywords   = keywordSet{"mobile", "iphone", "ipod", "windows phone", "iemobile", "blackberry", "opera mini"}
	tvKeywords       = keywordSet{"smart-tv", "smarttv", "googletv", "appletv", "android tv", "webos", "tizen"}
	consoleKeywords  = keywordSet{"playstation", "xbox", "nintendo"}
	wearableKeywords = keywordSet{"watch os", "wearos", "galaxy watch"}

	androidModelPattern = regexp.MustCompile(`(?i)android[\s\d._]*;\s*(?:[a-z]{2}[-_][a-z]{2};\s*)?([^;)]+?)(?:\s+build/[^;)]*)?[;)]`)
)

// titleCase returns s in English title case. Casers are stateful, so one is
// built per call.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// Classify builds a DeviceProfile from a user agent string.
func Classify(ua string) model.DeviceProfile {
	if len(ua) > maxUALength {
		ua = ua[:maxUALength]
	}
	lower := strings.ToLower(strings.TrimSpace(ua))

	token := RawType(lower)
	return model.DeviceProfile{
		Category: CategoryFor(token),
		OS:       ParseOS(ua),
		Browser:  ParseBrowser(ua),
		Model:    ParseModel(ua, token),
	}
}

// RawType returns the raw device-type token for a lowercased user agent,
// or "" when the agent shows no handheld or appliance signal.
func RawType(lowerUA string) string {
	switch {
	case lowerUA == "":
		return ""
	case wearableKeywords.contains(lowerUA):
		return TokenWearable
	case tabletKeywords.contains(lowerUA):
		return TokenTablet
	case strings.Contains(lowerUA, "android"):
		// Android tablets omit the Mobile keyword that phones carry.
		if strings.Contains(lowerUA, "mobile") {
			return TokenMobile
		}
		if tvKeywords.contains(lowerUA) {
			return TokenSmartTV
		}
		return TokenTablet
	case mobileKeywords.contains(lowerUA):
		return TokenMobile
	case tvKeywords.contains(lowerUA):
		return TokenSmartTV
	case consoleKeywords.contains(lowerUA):
		return TokenConsole
	}
	return ""
}

// CategoryFor maps a raw device-type token to a routing category.
// Anything that is not a phone or tablet routes as Desktop.
func CategoryFor(token string) model.DeviceCategory {
	switch titleCase(strings.TrimSpace(token)) {
	case string(model.DeviceMobile):
		return model.DeviceMobile
	case string(model.DeviceTablet):
		return model.DeviceTablet
	default:
		return model.DeviceDesktop
	}
}

// ParseModel extracts a hardware model for handheld devices.
func ParseModel(ua, token string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "iphone"):
		return "iPhone"
	case strings.Contains(lower, "ipad"):
		return "iPad"
	case strings.Contains(lower, "ipod"):
		return "iPod"
	}

	if token != TokenMobile && token != TokenTablet {
		return model.UnknownValue
	}

	if m := androidModelPattern.FindStringSubmatch(ua); len(m) > 1 {
		name := strings.TrimSpace(m[1])
		// Reduced user agents report a literal "K" in place of the model.
		if name != "" && name != "K" && !strings.EqualFold(name, "mobile") {
			return name
		}
	}
	return model.UnknownValue
}
