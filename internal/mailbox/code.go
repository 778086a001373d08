package mailbox

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// GenerateAlias derives a unique address from the base mailbox using the
// provider's '+' alias feature. All aliases deliver to the same inbox, which
// is what makes unlimited registration accounts possible from one mailbox.
func GenerateAlias(address, suffix string) string {
	if suffix == "" {
		suffix = time.Now().Format("20060102_150405")
	}
	local, domain, ok := strings.Cut(address, "@")
	if !ok {
		return address
	}
	return fmt.Sprintf("%s+%s@%s", local, suffix, domain)
}

// codePatterns are tried in order, most specific first: styled HTML code
// boxes, then explicit textual announcements of the code.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<span[^>]*style="[^"]*color[^"]*">([A-Z0-9]{6})</span>`),
	regexp.MustCompile(`(?i)letter-spacing[^>]*>\s*(?:<span[^>]*>)?([A-Z0-9]{6})(?:</span>)?`),
	regexp.MustCompile(`(?i)<strong>([A-Za-z0-9]{6})</strong>`),
	regexp.MustCompile(`(?i)verification\s+code[：:\s]+([A-Za-z0-9]{4,8})`),
	regexp.MustCompile(`(?i)your\s+code\s+is[：:\s]+([A-Za-z0-9]{4,8})`),
}

// fallbackPattern catches standalone 6-char codes starting with a letter or
// digit, like M4JPD3, when no announced pattern matched.
var fallbackPattern = regexp.MustCompile(`(?i)\b([A-Z][A-Z0-9]{5})\b|\b([0-9][A-Z0-9]{5})\b`)

// invalidCodeWords are common words a loose pattern might capture from HTML
// or prose; they are never verification codes.
var invalidCodeWords = map[string]struct{}{
	"CODE": {}, "CURSOR": {}, "LETTER": {}, "NUMBER": {}, "STRING": {}, "STYLE": {},
	"COLOR": {}, "WIDTH": {}, "HEIGHT": {}, "MARGIN": {}, "BORDER": {}, "BUTTON": {},
	"EMAIL": {}, "LOGIN": {}, "SUBMIT": {}, "VERIFY": {}, "HEADER": {}, "FOOTER": {},
}

// ExtractCode finds a verification code in an email body, or returns "".
func ExtractCode(body string) string {
	for _, pattern := range codePatterns {
		if m := pattern.FindStringSubmatch(body); m != nil {
			code := strings.ToUpper(m[1])
			if isValidCode(code) {
				return code
			}
		}
	}
	for _, m := range fallbackPattern.FindAllStringSubmatch(body, -1) {
		code := m[1]
		if code == "" {
			code = m[2]
		}
		code = strings.ToUpper(code)
		if isValidCode(code) {
			return code
		}
	}
	return ""
}

// isValidCode rejects captures that look like words rather than codes.
func isValidCode(code string) bool {
	if _, bad := invalidCodeWords[code]; bad {
		return false
	}
	unique := make(map[rune]struct{})
	hasLetter, hasDigit := false, false
	for _, r := range code {
		unique[r] = struct{}{}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	if len(unique) < 2 {
		return false
	}
	// All-letter captures are suspicious unless they look random.
	if hasLetter && !hasDigit {
		return len(unique) >= 4
	}
	return true
}
