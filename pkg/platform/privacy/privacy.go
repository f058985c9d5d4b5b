// Package privacy holds helpers for keeping personal data out of logs.
package privacy

import (
	"net"
	"strings"
)

// AnonymizeIP truncates an IP address before it reaches logs or audit events:
// IPv4 keeps the /24 prefix, IPv6 keeps the /48 prefix. Invalid input is
// returned as "invalid" rather than echoing the raw value.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "invalid"
	}
	if v4 := parsed.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String() + "/24"
	}
	masked := parsed.Mask(net.CIDRMask(48, 128))
	return masked.String() + "/48"
}

// MaskIdentifier hides the local part of an email-shaped identifier, keeping
// the first character and the domain so audit trails stay correlatable.
func MaskIdentifier(identifier string) string {
	at := strings.IndexByte(identifier, '@')
	if at <= 0 {
		if len(identifier) <= 2 {
			return "**"
		}
		return identifier[:1] + strings.Repeat("*", len(identifier)-1)
	}
	return identifier[:1] + "***" + identifier[at:]
}
