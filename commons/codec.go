package commons

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/burntcarrot/smartshare/ot"
)

var (
	// ErrMalformedMessage indicates input that does not decode to a known message.
	ErrMalformedMessage = errors.New("malformed message")
)

// wireChange mirrors ot.TextModification with every field optional, so that
// absent fields can be told apart from zero values.
type wireChange struct {
	Offset *int    `json:"offset"`
	Delete *int    `json:"delete"`
	Text   *string `json:"text"`
}

// envelope is the JSON form of every message. The fields a message does not
// use are left out.
type envelope struct {
	Action Action `json:"action"`

	Changes      *[]wireChange `json:"changes,omitempty"`
	BaseRevision *int          `json:"base_revision,omitempty"`

	OffsetFormat *string `json:"offset_format,omitempty"`
	// Older plugins spell the field in camel case.
	OffsetFormatAlias *string `json:"offsetFormat,omitempty"`

	File     *string `json:"file,omitempty"`
	Revision *int    `json:"revision,omitempty"`

	Error *string `json:"error,omitempty"`
}

func intPtr(n int) *int {
	return &n
}

func strPtr(s string) *string {
	return &s
}

// revisionPtr leaves unknown revisions out of the wire form.
func revisionPtr(rev int) *int {
	if rev < 0 {
		return nil
	}
	return intPtr(rev)
}

// Encode returns the wire form of msg.
func Encode(msg Message) ([]byte, error) {
	env := envelope{Action: msg.Action()}

	switch m := msg.(type) {
	case Update:
		changes := make([]wireChange, 0, len(m.Changes))
		for _, c := range m.Changes {
			changes = append(changes, wireChange{Offset: intPtr(c.Offset), Delete: intPtr(c.Delete), Text: strPtr(c.Text)})
		}
		env.Changes = &changes
		env.BaseRevision = revisionPtr(m.BaseRevision)
	case Declare:
		env.OffsetFormat = strPtr(m.Unit.String())
	case Error:
		env.Error = strPtr(m.Reason)
	case RequestFile:
	case File:
		env.File = strPtr(m.Text)
		env.Revision = revisionPtr(m.Revision)
	case Ack:
		env.Revision = revisionPtr(m.Revision)
	default:
		return nil, fmt.Errorf("encode %T: unknown message", msg)
	}

	return json.Marshal(env)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// optionalRevision decodes an optional revision field.
func optionalRevision(rev *int) (int, error) {
	if rev == nil {
		return RevisionUnknown, nil
	}
	if *rev < 0 {
		return 0, malformed("negative revision %d", *rev)
	}
	return *rev, nil
}

// Decode parses the wire form of a message. It fails with ErrMalformedMessage
// when the action is missing or unknown, or when a field the action requires
// is absent or mistyped.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed("%v", err)
	}

	switch env.Action {
	case UpdateAction:
		if env.Changes == nil {
			return nil, malformed("update without changes")
		}
		changes := make([]ot.TextModification, 0, len(*env.Changes))
		for i, c := range *env.Changes {
			if c.Offset == nil || c.Delete == nil || c.Text == nil {
				return nil, malformed("change %d: missing field", i)
			}
			if *c.Offset < 0 || *c.Delete < 0 {
				return nil, malformed("change %d: negative offset or delete", i)
			}
			changes = append(changes, ot.TextModification{Offset: *c.Offset, Delete: *c.Delete, Text: *c.Text})
		}
		base, err := optionalRevision(env.BaseRevision)
		if err != nil {
			return nil, err
		}
		return Update{Changes: changes, BaseRevision: base}, nil

	case DeclareAction:
		format := env.OffsetFormat
		if format == nil {
			format = env.OffsetFormatAlias
		}
		if format == nil {
			return nil, malformed("declare without offset_format")
		}
		unit, err := ot.ParseOffsetUnit(*format)
		if err != nil {
			return nil, malformed("%v", err)
		}
		return Declare{Unit: unit}, nil

	case ErrorAction:
		if env.Error == nil {
			return nil, malformed("error without reason")
		}
		return Error{Reason: *env.Error}, nil

	case RequestFileAction:
		return RequestFile{}, nil

	case FileAction:
		if env.File == nil {
			return nil, malformed("file without content")
		}
		rev, err := optionalRevision(env.Revision)
		if err != nil {
			return nil, err
		}
		return File{Text: *env.File, Revision: rev}, nil

	case AckAction:
		rev, err := optionalRevision(env.Revision)
		if err != nil {
			return nil, err
		}
		return Ack{Revision: rev}, nil

	case "":
		return nil, malformed("missing action")
	}

	return nil, malformed("unknown action %q", env.Action)
}
