package fingerprint

import (
	"fmt"
	"strings"

	"github.com/meridian-courier/device-trust/models"
)

// Metadata is the descriptive snapshot taken from the user agent when a
// device first registers. It is never re-derived for an existing row.
type Metadata struct {
	Name    string
	Kind    string
	Browser string
}

// Sniff is a pure function over the user-agent string; no storage, no
// network. Unknown agents come out as a generic desktop.
func Sniff(userAgent string) Metadata {
	ua := strings.ToLower(userAgent)

	kind := models.KindDesktop
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		kind = models.KindTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		kind = models.KindMobile
	}

	browser := "Unknown"
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		browser = "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	}

	osName := "Unknown OS"
	switch {
	case strings.Contains(ua, "windows"):
		osName = "Windows"
	case strings.Contains(ua, "android"):
		osName = "Android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		osName = "iOS"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		osName = "macOS"
	case strings.Contains(ua, "linux"):
		osName = "Linux"
	}

	return Metadata{
		Name:    fmt.Sprintf("%s on %s", browser, osName),
		Kind:    kind,
		Browser: browser,
	}
}
