package ui

import (
	"strings"
	"sync"

	"github.com/makanmate/makanmate/internal/live"
)

// TranscriptLog stitches live transcript fragments into utterances.
// Consecutive fragments from the same speaker extend the current entry until
// a Final fragment closes it or the speaker changes.
type TranscriptLog struct {
	mu      sync.Mutex
	entries []live.Transcript
	open    bool
}

// Add records t and returns the entry it now belongs to. started reports
// whether t opened a new entry.
func (l *TranscriptLog) Add(t live.Transcript) (entry live.Transcript, started bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.entries); n > 0 && l.open && l.entries[n-1].Role == t.Role {
		e := &l.entries[n-1]
		e.Text = joinFragment(e.Text, t.Text)
		e.Final = t.Final
		l.open = !t.Final
		return *e, false
	}
	t.Text = strings.TrimLeft(t.Text, " ")
	l.entries = append(l.entries, t)
	l.open = !t.Final
	return t, true
}

// Entries returns a copy of the stitched utterances.
func (l *TranscriptLog) Entries() []live.Transcript {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]live.Transcript, len(l.entries))
	copy(out, l.entries)
	return out
}

// joinFragment appends frag to text. Fragments carry their own word
// spacing, so they are concatenated as is.
func joinFragment(text, frag string) string {
	if text == "" {
		return strings.TrimLeft(frag, " ")
	}
	return text + frag
}
