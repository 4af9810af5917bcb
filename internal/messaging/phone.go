package messaging

import (
	"regexp"
	"strings"
)

const (
	countryCode    = "55"
	groupSuffix    = "@g.us"
	minLocalDigits = 10
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizeIdentity turns a WhatsApp chat id or phone number into the session key:
// digits only, with the Brazilian country code. "5511999990000@s.whatsapp.net" and
// "(11) 99999-0000" both become "5511999990000".
func NormalizeIdentity(raw string) string {
	raw = strings.TrimSpace(raw)
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}
	// Multi-device ids carry a ":device" suffix.
	if colon := strings.IndexByte(raw, ':'); colon >= 0 {
		raw = raw[:colon]
	}
	digits := sanitizePhone(raw)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, countryCode) && len(digits) > minLocalDigits+1 {
		return digits
	}
	return countryCode + digits
}

// IsGroupChat reports whether the chat id names a group.
func IsGroupChat(chatID string) bool {
	return strings.HasSuffix(strings.TrimSpace(chatID), groupSuffix)
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}
