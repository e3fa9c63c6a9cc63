package prompts

import (
	"strings"
	"testing"
)

func TestSystemPrompt(t *testing.T) {
	result := SystemPrompt("nivuus")

	if !strings.Contains(result, "(nivuus)") {
		t.Error("prompt should name the binary")
	}
	for _, tool := range []string{"read_file", "list_directory", "write_file", "run_bash_command", "web_search", "get_memory_value", "set_memory_value", "get_memory_keys", "ask_user"} {
		if !strings.Contains(result, tool) {
			t.Errorf("prompt should list %s", tool)
		}
	}
}

func TestMemorySummary(t *testing.T) {
	result := MemorySummary(MemoryView{
		SystemInfo:  `{"os":"Linux"}`,
		Notes:       "prefers zsh",
		Actions:     []string{"10:00:00 [Success] Command: ls", "10:00:01 [Failure] Command: rm (Err: denied)"},
		ActionTotal: 12,
	})

	if !strings.HasPrefix(result, MemoryReminder) {
		t.Error("summary should start with the reminder header")
	}
	for _, want := range []string{`System info: {"os":"Linux"}`, "Notes: prefers zsh", "Recent actions (2 of 12):", "[Failure] Command: rm"} {
		if !strings.Contains(result, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestMemorySummary_OmitsEmptySections(t *testing.T) {
	result := MemorySummary(MemoryView{Notes: "n"})

	if strings.Contains(result, "System info:") {
		t.Error("empty system info should be omitted")
	}
	if strings.Contains(result, "Recent actions") {
		t.Error("empty action list should be omitted")
	}
}
