package ini

import "github.com/faradayfan/dedicated-server-manager/internal/settings"

// Escape returns s as it must appear after "Key=". Values made only of
// letters, digits and ./_- are written bare; anything else, including the
// empty string, is quoted with backslash escapes.
func Escape(s string) string {
	if s != "" && isPlain(s) {
		return s
	}
	return settings.Quote(s)
}

// Unescape reverses Escape. Bare values are returned as-is.
func Unescape(s string) string {
	if !settings.IsQuoted(s) {
		return s
	}
	u, err := settings.Unquote(s)
	if err != nil {
		return s
	}
	return u
}

func isPlain(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '/', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
