// Package console is the operator's terminal: questions, confirmations
// and the assistant's replies.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Terminal reads operator input line by line and writes to out. It is
// safe for use by one reader at a time; writes are serialized.
type Terminal struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal returns a Terminal over in and out, normally os.Stdin and
// os.Stdout.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Ask prints prompt and returns the next line without its line ending.
// A final line without a newline is returned with a nil error; io.EOF
// is returned only when nothing was read.
func (t *Terminal) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.Printf("%s ", strings.TrimRight(prompt, " "))

	line, err := t.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Confirm asks a yes/no question until the answer is recognized.
// y, o and yes confirm; n and no decline. Matching ignores case and
// surrounding whitespace.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	for {
		answer, err := t.Ask(ctx, question+" (y/n)")
		if err != nil {
			return false, err
		}
		if yes, ok := ParseConfirmation(answer); ok {
			return yes, nil
		}
		t.Printf("Please answer y or n.\n")
	}
}

// ParseConfirmation interprets a confirmation answer. ok is false when
// the answer is neither yes nor no.
func ParseConfirmation(answer string) (yes, ok bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "o", "yes":
		return true, true
	case "n", "no":
		return false, true
	default:
		return false, false
	}
}

// Printf writes formatted text to the terminal.
func (t *Terminal) Printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// Reply shows an assistant free-text reply.
func (t *Terminal) Reply(text string) {
	t.Printf("\nAssistant:\n%s\n\n", strings.TrimSpace(text))
}
