package session

import "strings"

// BufferEntry is a headless TextEntry.
type BufferEntry struct {
	b strings.Builder
}

func (e *BufferEntry) KeyDown(r rune) {
	e.b.WriteRune(r)
}

func (e *BufferEntry) Submit() {
	e.b.Reset()
}

func (e *BufferEntry) Value() string {
	return e.b.String()
}
