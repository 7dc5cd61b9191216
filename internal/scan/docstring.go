package scan

import (
	"strings"
)

// cleanDocstring strips the string prefix and quotes from a literal and
// normalizes indentation: the first line is trimmed, the common indentation
// of the remaining lines is removed and surrounding blank lines are dropped.
func cleanDocstring(literal string) string {
	s := strings.TrimLeft(literal, "rRuUbBfF")
	q := 1
	if strings.HasPrefix(s, `"""`) || strings.HasPrefix(s, `'''`) {
		q = 3
	}
	if len(s) < 2*q {
		return ""
	}
	s = s[q : len(s)-q]

	lines := strings.Split(strings.ReplaceAll(s, "\t", "        "), "\n")
	indent := -1
	for _, l := range lines[1:] {
		trimmed := strings.TrimLeft(l, " ")
		if trimmed == "" {
			continue
		}
		if n := len(l) - len(trimmed); indent < 0 || n < indent {
			indent = n
		}
	}
	lines[0] = strings.TrimSpace(lines[0])
	for i := 1; i < len(lines); i++ {
		l := lines[i]
		if indent > 0 && len(l) >= indent {
			l = l[indent:]
		} else {
			l = strings.TrimLeft(l, " ")
		}
		lines[i] = strings.TrimRight(l, " \r")
	}

	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
