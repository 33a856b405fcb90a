package log

import (
	"net/url"
	"regexp"
	"strings"
)

var sensitiveKeywords = []string{
	"password", "passwd",
	"api_key", "apikey", "api-key",
	"token", "secret", "authorization",
	"credential", "private_key",
}

// exact key names that hold credentials but are too generic to substring-match
var sensitiveExact = map[string]bool{
	"key":  true,
	"keys": true,
	"auth": true,
}

// SanitizeField masks value when key names a credential. URL-looking
// values have their credential query parameters masked.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)
	if sensitiveExact[lowerKey] {
		return sanitizeToken(value)
	}
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return sanitizeToken(value)
		}
	}

	if strings.Contains(value, "key=") {
		return SanitizeURL(value)
	}
	return value
}

var credentialParam = regexp.MustCompile(`(?i)([?&](?:key|appid|api_key|apikey|token)=)([^&\s"]+)`)

// SanitizeURL masks credential query parameters anywhere in s. It accepts
// bare URLs as well as error strings that embed one.
func SanitizeURL(s string) string {
	return credentialParam.ReplaceAllStringFunc(s, func(m string) string {
		sub := credentialParam.FindStringSubmatch(m)
		v, err := url.QueryUnescape(sub[2])
		if err != nil {
			v = sub[2]
		}
		return sub[1] + sanitizeToken(v)
	})
}

// sanitizeToken keeps the first and last 4 characters of long values.
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
