// Package ide connects an editor plugin to a session. The plugin speaks the
// wire protocol over stdio, one JSON message per line.
package ide

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/burntcarrot/smartshare/commons"
	"github.com/burntcarrot/smartshare/ot"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoHandshake indicates that the plugin went away before saying whether
	// it shares or joins a document.
	ErrNoHandshake = errors.New("plugin closed before handshake")
)

const maxLineSize = 16 << 20

// Adapter mirrors the plugin's buffer. It implements engine.EditorAdapter.
type Adapter struct {
	scanner *bufio.Scanner
	logger  logrus.FieldLogger

	mu     sync.Mutex // guards the fields below
	w      io.Writer
	unit   ot.OffsetUnit
	text   string
	onEdit func(ot.TextModification)
}

func New(r io.Reader, w io.Writer, logger logrus.FieldLogger) *Adapter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return &Adapter{
		scanner: scanner,
		logger:  logger,
		w:       w,
		onEdit:  func(ot.TextModification) {},
	}
}

func (a *Adapter) next() (commons.Message, error) {
	for a.scanner.Scan() {
		line := a.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := commons.Decode(line)
		if err != nil {
			a.logger.WithError(err).Warn("bad message from plugin")
			a.write(commons.Error{Reason: err.Error()})
			continue
		}
		return msg, nil
	}
	if err := a.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Handshake reads the plugin's optional declare, followed by either a file
// (the plugin shares its buffer) or a file request (the plugin joins).
func (a *Adapter) Handshake() (unit ot.OffsetUnit, join bool, err error) {
	for {
		msg, err := a.next()
		if err == io.EOF {
			return ot.Bytes, false, ErrNoHandshake
		}
		if err != nil {
			return ot.Bytes, false, err
		}

		switch msg := msg.(type) {
		case commons.Declare:
			a.mu.Lock()
			a.unit = msg.Unit
			a.mu.Unlock()
		case commons.File:
			a.mu.Lock()
			a.text = msg.Text
			unit = a.unit
			a.mu.Unlock()
			return unit, false, nil
		case commons.RequestFile:
			a.mu.Lock()
			unit = a.unit
			a.mu.Unlock()
			return unit, true, nil
		default:
			a.logger.WithField("action", msg.Action()).Warn("unexpected message before handshake")
		}
	}
}

// Listen turns the plugin's updates into local edits until stdin closes.
func (a *Adapter) Listen() error {
	for {
		msg, err := a.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch msg := msg.(type) {
		case commons.Update:
			for _, m := range msg.Changes {
				a.localEdit(m)
			}
		case commons.Error:
			a.logger.WithField("reason", msg.Reason).Warn("plugin reported an error")
		default:
			a.logger.WithField("action", msg.Action()).Debug("ignoring plugin message")
		}
	}
}

func (a *Adapter) localEdit(m ot.TextModification) {
	a.mu.Lock()
	text, err := ot.Apply(a.unit, a.text, m)
	if err != nil {
		a.mu.Unlock()
		a.logger.WithError(err).WithField("change", m).Warn("plugin edit does not fit its buffer")
		return
	}
	a.text = text
	onEdit := a.onEdit
	a.mu.Unlock()

	onEdit(m)
}

func (a *Adapter) write(msg commons.Message) error {
	data, err := commons.Encode(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.w.Write(data)
	return err
}

// CurrentText returns the mirrored buffer.
func (a *Adapter) CurrentText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}

// ApplyPatch forwards a remote modification to the plugin.
func (a *Adapter) ApplyPatch(m ot.TextModification) error {
	a.mu.Lock()
	text, err := ot.Apply(a.unit, a.text, m)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("patch plugin buffer: %w", err)
	}
	a.text = text
	a.mu.Unlock()

	return a.write(commons.Update{Changes: []ot.TextModification{m}, BaseRevision: commons.RevisionUnknown})
}

func (a *Adapter) OnLocalEdit(callback func(ot.TextModification)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEdit = callback
}
