package util

import "strings"

// SystemdEscape applies the systemd unit-name escaping rules to an
// identifier used inside a unit file name: '/' becomes '-', and every
// byte outside [a-zA-Z0-9:_.] is replaced by its \xXX hex form.
func SystemdEscape(s string) string {
	const hexdigits = "0123456789abcdef"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '/':
			sb.WriteByte('-')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == ':', c == '_', c == '.':
			// '.' may not lead a unit name
			if c == '.' && sb.Len() == 0 {
				sb.WriteString(`\x2e`)
			} else {
				sb.WriteByte(c)
			}
		default:
			sb.WriteString(`\x`)
			sb.WriteByte(hexdigits[c>>4])
			sb.WriteByte(hexdigits[c&0xf])
		}
	}
	return sb.String()
}

// URIEscape percent-encodes every byte of s outside the RFC 3986
// unreserved set. Used for definition ids and SSIDs embedded in
// generated file names.
func URIEscape(s string) string {
	const upperhex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[c>>4])
		sb.WriteByte(upperhex[c&0xf])
	}
	return sb.String()
}

// JoinTab joins glob patterns with the tab separator used as the internal
// encoding for multi-valued driver matches.
func JoinTab(globs []string) string {
	return strings.Join(globs, "\t")
}

// SplitTab splits a tab-joined glob list. Empty input returns nil.
func SplitTab(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\t")
}

// HasGlobChars reports whether s contains fnmatch-style wildcard
// characters.
func HasGlobChars(s string) bool {
	return strings.ContainsAny(s, "*?[]")
}

// GlobMatch implements the fnmatch subset used for interface-name and
// driver matching: '*' matches any run, '?' a single character. Character
// classes are not supported and match literally.
func GlobMatch(pattern, s string) bool {
	return globMatch(pattern, s)
}

func globMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatch(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if s == "" {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		default:
			if s == "" || pattern[0] != s[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return s == ""
}
