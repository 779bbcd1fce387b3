package template

import (
	"strconv"
	"strings"
)

// CoerceBool implements the boolean coercion table used after
// rendering a conditional's condition string: trimmed, lower-cased input
// compared against {true, 1, yes} / {false, 0, no, ""}; failing that, an
// integer parse (0 = false, nonzero = true); failing that, a non-empty
// string is true.
func CoerceBool(s string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	switch trimmed {
	case "true", "1", "yes":
		return true
	case "false", "0", "no", "":
		return false
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		return n != 0
	}
	return true
}
