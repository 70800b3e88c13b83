package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// NormalizeJSON indents a document with sorted keys so that diffs are stable.
// Input that is not JSON is returned unchanged.
func NormalizeJSON(b []byte) string {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return string(b)
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// encoding/json writes map keys in sorted order.
	_ = enc.Encode(v)
	return strings.TrimRight(buf.String(), "\n")
}

// UnifiedDiff returns a unified diff of two JSON documents and the number of
// added and removed key lines.
func UnifiedDiff(fromName, toName string, before, after []byte) (unified string, added, removed int) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(NormalizeJSON(before) + "\n"),
		B:        difflib.SplitLines(NormalizeJSON(after) + "\n"),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	}
	s, _ := difflib.GetUnifiedDiffString(diff)
	added, removed = countChanges(s)
	return s, added, removed
}

// countChanges only counts lines carrying a JSON key.
func countChanges(unified string) (add, del int) {
	sc := bufio.NewScanner(strings.NewReader(unified))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		if !strings.Contains(line, "\":") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			add++
		case strings.HasPrefix(line, "-"):
			del++
		}
	}
	return
}
