package pathnorm

import (
	"unicode"
)

// DOS wildcards the kernel rewrites "*", "?" and "." into when
// a pattern comes from an old style FindFirstFile call.
const (
	dosStar = '<'
	dosQM   = '>'
	dosDot  = '"'
)

// Match reports whether the name matches the wildcard pattern.
//
// "*" matches any sequence and "?" any single character. The
// DOS forms are honoured as well: "<" matches any sequence up
// to the final dot, ">" matches one character or nothing at a
// dot or the end of the name, and `"` matches a dot or the end
// of the name. An empty pattern, "*" and "*.*" match anything.
func Match(pattern, name string, ignoreCase bool) bool {
	switch pattern {
	case "", "*", "*.*":
		return true
	}
	return match([]rune(pattern), []rune(name), ignoreCase)
}

func equalRune(a, b rune, ignoreCase bool) bool {
	if a == b {
		return true
	}
	return ignoreCase && unicode.ToUpper(a) == unicode.ToUpper(b)
}

func hasDot(name []rune) bool {
	for _, r := range name {
		if r == '.' {
			return true
		}
	}
	return false
}

func match(pattern, name []rune, ignoreCase bool) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			for i := 0; i <= len(name); i++ {
				if match(pattern[1:], name[i:], ignoreCase) {
					return true
				}
			}
			return false
		case dosStar:
			for i := 0; i <= len(name); i++ {
				if i > 0 && name[i-1] == '.' && !hasDot(name[i:]) {
					// The final dot may not be swallowed.
					return false
				}
				if match(pattern[1:], name[i:], ignoreCase) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
		case dosQM:
			if len(name) == 0 || name[0] == '.' {
				pattern = pattern[1:]
				continue
			}
		case dosDot:
			if len(name) == 0 {
				pattern = pattern[1:]
				continue
			}
			if name[0] != '.' {
				return false
			}
		default:
			if len(name) == 0 ||
				!equalRune(pattern[0], name[0], ignoreCase) {
				return false
			}
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
