package speaker

import (
	"regexp"
	"strings"
)

var (
	androidVersionChrome = regexp.MustCompile(`Android.*Version/\d+\.\d+.*Chrome/`)
	iosDevice            = regexp.MustCompile(`iPhone|iPad|iPod`)
)

// inAppMarkers identify messenger and social apps that render pages in their
// own embedded browser.
var inAppMarkers = []string{"KAKAOTALK", "NAVER", "Instagram", "FBAN", "FBAV", "Line/"}

// IsEmbeddedBrowser reports whether ua looks like an in-app or embedded
// browser. Such browsers frequently ship without speech voices, so an empty
// voice list there is reported as a webview limitation rather than a missing
// voice pack.
func IsEmbeddedBrowser(ua string) bool {
	if ua == "" {
		return false
	}
	if strings.Contains(ua, "; wv)") {
		return true
	}
	if androidVersionChrome.MatchString(ua) {
		return true
	}
	if iosDevice.MatchString(ua) && !strings.Contains(ua, "Safari") {
		return true
	}
	for _, m := range inAppMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}
