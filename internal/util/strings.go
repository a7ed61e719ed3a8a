package util

// SafeTruncate truncates s to at most maxLen bytes without panicking.
// A negative maxLen yields "". Used to log a recognizable prefix of a
// code or token without writing the whole credential.
//
//	SafeTruncate("at-abcdefgh", 5) // "at-ab"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
