package storage

import "strings"

const globSpecial = `*?[]\`

// EscapePattern escapes glob metacharacters so s matches only itself.
func EscapePattern(s string) string {
	if !strings.ContainsAny(s, globSpecial) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(globSpecial, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// LiteralPrefix returns the longest unescaped literal prefix of pattern.
// Backends with ordered keyspaces use it to bound their iteration.
func LiteralPrefix(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*', '?', '[':
			return b.String()
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteByte(pattern[i])
				continue
			}
			return b.String()
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// MatchPattern reports whether key matches the Redis-style glob pattern.
// Supported: '*', '?', '[set]', '[^set]', '[a-z]' and '\' escapes. An empty
// pattern matches everything.
func MatchPattern(pattern, key string) bool {
	if pattern == "" {
		return true
	}
	return globMatch(pattern, key)
}

func globMatch(p, s string) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 0 && p[0] == '*' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatch(p, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			p, s = p[1:], s[1:]
		case '[':
			if len(s) == 0 {
				return false
			}
			rest, ok := matchClass(p[1:], s[0])
			if !ok {
				return false
			}
			p, s = rest, s[1:]
		case '\\':
			if len(p) >= 2 {
				p = p[1:]
			}
			fallthrough
		default:
			if len(s) == 0 || p[0] != s[0] {
				return false
			}
			p, s = p[1:], s[1:]
		}
	}
	return len(s) == 0
}

// matchClass evaluates a bracket expression (without the leading '[') against
// c and returns the pattern remainder after the closing ']'.
func matchClass(p string, c byte) (string, bool) {
	negate := false
	if len(p) > 0 && p[0] == '^' {
		negate = true
		p = p[1:]
	}
	matched := false
	for {
		if len(p) == 0 {
			// Unterminated class: treat like Redis, as end of pattern.
			return p, matched != negate
		}
		if p[0] == ']' {
			return p[1:], matched != negate
		}
		lo := p[0]
		if lo == '\\' && len(p) >= 2 {
			p = p[1:]
			lo = p[0]
		}
		p = p[1:]
		if len(p) >= 2 && p[0] == '-' && p[1] != ']' {
			hi := p[1]
			p = p[2:]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			continue
		}
		if lo == c {
			matched = true
		}
	}
}
