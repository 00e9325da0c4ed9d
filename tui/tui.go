// Package tui is a terminal editor for a shared document, built on a
// bubbletea textarea.
package tui

import (
	"fmt"
	"sync"

	"github.com/burntcarrot/smartshare/ot"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
)

type (
	errMsg    error
	statusMsg string

	// patchMsg tells the model that remote patches are waiting in the mirror.
	patchMsg struct{}
)

// Adapter owns the text the textarea is showing. It implements
// engine.EditorAdapter with offsets in characters.
type Adapter struct {
	program *tea.Program

	mu sync.Mutex // guards the fields below
	// text is the buffer including every patch, shown or not.
	text string
	// unseen holds patches applied to text but not yet to the textarea.
	unseen []ot.TextModification
	onEdit func(ot.TextModification)
}

// New creates the editor, showing text under the given title.
func New(title, text string) *Adapter {
	a := &Adapter{text: text, onEdit: func(ot.TextModification) {}}
	a.program = tea.NewProgram(initialModel(a, title, text), tea.WithAltScreen())
	return a
}

// Run shows the editor until the user quits.
func (a *Adapter) Run() error {
	return a.program.Start()
}

// SetStatus replaces the status line.
func (a *Adapter) SetStatus(format string, args ...any) {
	a.program.Send(statusMsg(fmt.Sprintf(format, args...)))
}

func (a *Adapter) CurrentText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}

func (a *Adapter) ApplyPatch(m ot.TextModification) error {
	if err := a.patch(m); err != nil {
		return err
	}
	a.program.Send(patchMsg{})
	return nil
}

func (a *Adapter) patch(m ot.TextModification) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	text, err := ot.Apply(ot.Chars, a.text, m)
	if err != nil {
		return err
	}
	a.text = text
	a.unseen = append(a.unseen, m)
	return nil
}

func (a *Adapter) OnLocalEdit(callback func(ot.TextModification)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEdit = callback
}

// reconcile folds what the user typed into the buffer. shown is what the
// textarea held after the last reconcile and typed is what it holds now.
// It returns the text the textarea should show from now on.
func (a *Adapter) reconcile(shown, typed string) string {
	a.mu.Lock()

	var edits []ot.TextModification
	if local := ot.Diff(ot.Chars, shown, typed); !local.IsNoop() {
		edits = []ot.TextModification{local}
		if len(a.unseen) > 0 {
			_, edits = ot.TransformPatch(ot.Chars, a.unseen, edits, true)
		}
	}

	applied := edits[:0]
	for _, m := range edits {
		text, err := ot.Apply(ot.Chars, a.text, m)
		if err != nil {
			continue
		}
		a.text = text
		applied = append(applied, m)
	}
	a.unseen = nil
	text, onEdit := a.text, a.onEdit
	a.mu.Unlock()

	for _, m := range applied {
		onEdit(m)
	}
	return text
}

type model struct {
	adapter  *Adapter
	title    string
	status   string
	textarea textarea.Model
	// shown is the text the textarea held after the last reconcile.
	shown    string
	err      error
	Quitting bool
}

func initialModel(a *Adapter, title, text string) model {
	ta := textarea.New()
	ta.Placeholder = "Write some text here..."
	ta.ShowLineNumbers = true
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(20)
	ta.SetValue(text)
	ta.Focus()

	return model{
		adapter:  a,
		title:    title,
		textarea: ta,
		shown:    ta.Value(),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.textarea.SetWidth(msg.Width)
		m.textarea.SetHeight(max(msg.Height-4, 1))
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case patchMsg:
		m.sync(m.shown)
		return m, nil

	// We handle errors just like any other message
	case errMsg:
		m.err = msg
		return m, nil
	}

	m.textarea, cmd = m.textarea.Update(msg)
	if typed := m.textarea.Value(); typed != m.shown {
		m.sync(typed)
	}

	return m, cmd
}

// sync reconciles typed with the adapter and shows the result.
func (m *model) sync(typed string) {
	text := m.adapter.reconcile(m.shown, typed)
	if text != m.textarea.Value() {
		m.textarea.SetValue(text)
	}
	m.shown = m.textarea.Value()
}

func (m model) View() string {
	if m.Quitting {
		return "\n  See you later!\n\n"
	}

	status := m.status
	if m.err != nil {
		status = m.err.Error()
	}
	return fmt.Sprintf(
		"%s\n\n%s\n\n%s  (ctrl+c to quit)",
		m.title,
		m.textarea.View(),
		status,
	) + "\n"
}
