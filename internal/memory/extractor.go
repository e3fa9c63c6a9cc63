package memory

import (
	"regexp"
	"strings"
)

// factLine matches "key: value" lines in assistant replies. Keys are
// word characters plus dot and dash.
var factLine = regexp.MustCompile(`^\s*([\w.-]+)\s*:\s*(.+)$`)

// Fact is a key/value pair lifted from narrative text.
type Fact struct {
	Key   string
	Value string
}

// ExtractFacts returns every "key: value" line of text, in order.
func ExtractFacts(text string) []Fact {
	var facts []Fact
	for _, line := range strings.Split(text, "\n") {
		m := factLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		key := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		if key == "" || value == "" {
			continue
		}
		facts = append(facts, Fact{Key: key, Value: value})
	}
	return facts
}

// ApplyFacts extracts facts from text into system_info and returns the
// ones that changed a stored value.
func (m *Memory) ApplyFacts(text string) []Fact {
	var changed []Fact
	for _, f := range ExtractFacts(text) {
		if m.SetFact(f.Key, f.Value) {
			changed = append(changed, f)
		}
	}
	return changed
}
