package prompts

import (
	"fmt"
	"strings"
)

// MemoryReminder heads the memory turn injected after the system turn.
const MemoryReminder = `Reminder of your persistent memory. Use it as context; it is not a new request.`

// MemoryView is the already-rendered content of a memory summary.
type MemoryView struct {
	SystemInfo  string   // JSON object, empty when there is none
	Notes       string   // free text
	Actions     []string // formatted recent entries, oldest first
	ActionTotal int      // entries in the whole log
}

// MemorySummary renders the injected memory turn. Sections with no
// content are omitted.
func MemorySummary(v MemoryView) string {
	var b strings.Builder
	b.WriteString(MemoryReminder)
	b.WriteString("\n--- Memory summary ---\n")
	if v.SystemInfo != "" {
		fmt.Fprintf(&b, "System info: %s\n", v.SystemInfo)
	}
	if v.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", v.Notes)
	}
	if len(v.Actions) > 0 {
		fmt.Fprintf(&b, "Recent actions (%d of %d):\n", len(v.Actions), v.ActionTotal)
		for _, a := range v.Actions {
			b.WriteString("  ")
			b.WriteString(a)
			b.WriteByte('\n')
		}
	}
	b.WriteString("--- End of memory summary ---")
	return b.String()
}
