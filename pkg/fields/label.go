package fields

import (
	"regexp"
	"strings"
)

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// Label derives a display label from a field name.
//
//	"rootPath"  -> "Root Path"
//	"root_path" -> "Root Path"
func Label(name string) string {
	s := camelBoundary.ReplaceAllString(name, "$1 $2")
	s = strings.ReplaceAll(s, "_", " ")
	return upperWords(s)
}

// upperWords upper-cases the first byte of each whitespace separated word and
// leaves everything else as is.
func upperWords(s string) string {
	b := []byte(s)
	start := true
	for i, c := range b {
		if strings.IndexByte(" \t\r\n\f\v", c) >= 0 {
			start = true
			continue
		}
		if start && c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
		start = false
	}
	return string(b)
}
