package storage

// globMatch implements the glob-style subset used by KEYS and SCAN
// patterns: '*' (any run), '?' (single char) and '[...]' character
// classes, matched the way redis-style pattern matching works rather
// than filepath.Match (which treats '/' specially and errors on bare
// '[' — both wrong for key names).
func globMatch(pattern, s string) bool {
	return globMatchAt(pattern, s)
}

// GlobMatch exposes globMatch to other packages (CONFIG GET). The
// error result is always nil.
func GlobMatch(pattern, s string) (bool, error) {
	return globMatch(pattern, s), nil
}

func globMatchAt(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatchAt(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		case '[':
			if len(s) == 0 {
				return false
			}
			end := indexByte(pattern[1:], ']')
			if end < 0 {
				return pattern[0] == s[0] && globMatchAt(pattern[1:], s[1:])
			}
			class := pattern[1 : 1+end]
			negate := false
			if len(class) > 0 && class[0] == '^' {
				negate = true
				class = class[1:]
			}
			if classMatch(class, s[0]) != negate {
				s = s[1:]
				pattern = pattern[2+end:]
				continue
			}
			return false
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			if len(s) == 0 || pattern[0] != s[0] {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		default:
			if len(s) == 0 || pattern[0] != s[0] {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		}
	}
	return len(s) == 0
}

func classMatch(class string, c byte) bool {
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				return true
			}
			i += 2
			continue
		}
		if class[i] == c {
			return true
		}
	}
	return false
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
