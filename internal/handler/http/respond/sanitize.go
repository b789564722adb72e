package respond

import (
	"regexp"
)

// Patterns apply in order; the Anthropic key must be masked before the
// generic sk- pattern sees it.
var (
	anthropicKeyPattern = regexp.MustCompile(`sk-ant-[a-zA-Z0-9-_]+`)
	openaiKeyPattern    = regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`)
	hubTokenPattern     = regexp.MustCompile(`hf_[a-zA-Z0-9]{8,}`)
	bearerPattern       = regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]+`)

	// userinfo in URLs such as a model server base URL
	urlPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)
)

// SanitizeError returns err's message with API keys, access tokens and URL
// passwords masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString masks secrets in msg.
func SanitizeString(msg string) string {
	msg = anthropicKeyPattern.ReplaceAllString(msg, "sk-ant-****")
	msg = openaiKeyPattern.ReplaceAllString(msg, "sk-****")
	msg = hubTokenPattern.ReplaceAllString(msg, "hf_****")
	msg = bearerPattern.ReplaceAllString(msg, "Bearer ****")
	msg = urlPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	return msg
}
