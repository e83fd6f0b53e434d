package util

import "strings"

// Quote wraps an identifier in the quote character, doubling embedded quotes.
func Quote(name string, q byte) string {
	qs := string(q)
	return qs + strings.ReplaceAll(name, qs, qs+qs) + qs
}

// Unquote strips one level of identifier quoting if present.
func Unquote(name string, q byte) string {
	if len(name) >= 2 && name[0] == q && name[len(name)-1] == q {
		qs := string(q)
		return strings.ReplaceAll(name[1:len(name)-1], qs+qs, qs)
	}
	return name
}
