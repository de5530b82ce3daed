package at

import (
	"strconv"
	"strings"
)

// Fields splits an info line payload into its comma separated values.
// Commas inside double quotes or parentheses do not split, so a +COPS=?
// payload yields one field per operator group. Surrounding blanks are
// trimmed; quotes and parentheses are kept.
func Fields(payload string) []string {
	var (
		fields []string
		depth  int
		quoted bool
		start  int
	)
	for i := 0; i < len(payload); i++ {
		switch payload[i] {
		case '"':
			quoted = !quoted
		case '(':
			if !quoted {
				depth++
			}
		case ')':
			if !quoted && depth > 0 {
				depth--
			}
		case ',':
			if !quoted && depth == 0 {
				fields = append(fields, strings.TrimSpace(payload[start:i]))
				start = i + 1
			}
		}
	}
	return append(fields, strings.TrimSpace(payload[start:]))
}

// Unquote strips one pair of surrounding double quotes, if present.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Ungroup strips one pair of surrounding parentheses. ok is false when s is
// not a parenthesised group.
func Ungroup(s string) (inner string, ok bool) {
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		return s[1 : len(s)-1], true
	}
	return s, false
}

// Int parses a decimal integer field, ignoring surrounding blanks.
func Int(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// Payload returns the part of line after prefix with blanks trimmed.
// ok is false when line does not start with prefix.
func Payload(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}

// CommandID returns the identifier part of a command line, the section
// before any '=' or '?'. "AT+CGPS=1,1" and "AT+CGPS?" both yield "AT+CGPS".
func CommandID(cmd string) string {
	if i := strings.IndexAny(cmd, "=?"); i >= 0 {
		return cmd[:i]
	}
	return cmd
}
