package csrf

import (
	"net/url"
	"strings"
)

// parseRawCookie extracts one cookie value from a raw Cookie header, splitting
// on "; " and "=" and URL-decoding the value. This is the fallback for cookie
// values the structured parser rejects (some proxies re-encode cookies in ways
// net/http refuses).
func parseRawCookie(header, name string) string {
	if header == "" {
		return ""
	}
	for _, pair := range strings.Split(header, "; ") {
		key, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(key) != name {
			continue
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			return decoded
		}
		return value
	}
	return ""
}
