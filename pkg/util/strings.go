package util

// Unquote strips one pair of surrounding double quotes, if present.
// RouterOS exports quote values that contain spaces.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
