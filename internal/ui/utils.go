package ui

// truncate shortens s to at most length runes, marking the cut with "...".
func truncate(s string, length int) string {
	if length <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) > length {
		return string(runes[:length-3]) + "..."
	}
	return s
}
