package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Entry adapts a textinput to the runtime's text entry. Only runes the
// runtime accepts reach it.
type Entry struct {
	input textinput.Model
}

// NewEntry returns a focused entry box.
func NewEntry() *Entry {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 64
	ti.Width = 24
	ti.Focus()
	return &Entry{input: ti}
}

func (e *Entry) KeyDown(r rune) {
	e.input, _ = e.input.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
}

func (e *Entry) Submit() {
	e.input.Reset()
}

func (e *Entry) Value() string {
	return e.input.Value()
}

func (e *Entry) View() string {
	return e.input.View()
}
