package handlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/upb/lovely-prompts/internal/events"
)

// writeSSEEvent writes one server-sent event frame. Multi-line data is
// split across data fields so the client reassembles it unchanged.
func writeSSEEvent(w io.Writer, ev events.Event) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", ev.Kind)
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// writeSSEComment writes a comment frame, which clients ignore
func writeSSEComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}
