package feed

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/normalize"
)

// RecordSeparator terminates every JSON frame on the wire
const RecordSeparator = '\x1e'

// Message types of the hub protocol
const (
	TypeInvocation = 1
	TypeStreamItem = 2
	TypeCompletion = 3
	TypePing       = 6
	TypeClose      = 7
)

// Invocation targets used by the watcher
const (
	TargetViewExecution                = "ViewExecution"
	TargetViewLogExecution             = "ViewLogExecution"
	TargetViewNoPageProcess            = "ViewNoPageProcess"
	TargetViewNoPageXamlPackageVersion = "ViewNoPageXamlPackageVersion"
	TargetViewRobot                    = "ViewRobot"
	TargetRunProcessExecution          = "RunProcessExecution"
)

// Frame is one decoded hub message
type Frame struct {
	Type         int               `json:"type"`
	Target       string            `json:"target,omitempty"`
	InvocationID string            `json:"invocationId,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// CanonicalTarget lowercases t and removes '-' and '_' so spellings such
// as "ViewExecution", "viewExecution" and "view-execution" compare equal.
func CanonicalTarget(t string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(t)))
}

// Is reports whether the frame's target is target, ignoring spelling
func (f Frame) Is(target string) bool {
	return f.Target != "" && CanonicalTarget(f.Target) == CanonicalTarget(target)
}

// Handshake returns the protocol negotiation frame sent after connecting
func Handshake() []byte {
	return append([]byte(`{"protocol":"json","version":1}`), RecordSeparator)
}

// Invocation encodes an outgoing invocation frame
func Invocation(target, invocationID string, args ...interface{}) ([]byte, error) {
	if args == nil {
		args = []interface{}{}
	}
	b, err := json.Marshal(struct {
		Type         int           `json:"type"`
		Target       string        `json:"target"`
		InvocationID string        `json:"invocationId"`
		Arguments    []interface{} `json:"arguments"`
	}{TypeInvocation, target, invocationID, args})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s invocation", target)
	}
	return append(b, RecordSeparator), nil
}

// SplitFrames decodes every frame in one websocket message. Blank pieces
// are skipped; pieces that are not valid JSON are counted in dropped.
func SplitFrames(msg []byte) (frames []Frame, dropped int) {
	for _, piece := range bytes.Split(msg, []byte{RecordSeparator}) {
		piece = bytes.TrimSpace(piece)
		if len(piece) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(piece, &f); err != nil {
			dropped++
			continue
		}
		frames = append(frames, f)
	}
	return frames, dropped
}

// dataEnvelope is the payload shape {"Data": [...]} with any key casing
type dataEnvelope map[string]json.RawMessage

func (e dataEnvelope) data() (json.RawMessage, bool) {
	for k, v := range e {
		if strings.EqualFold(k, "data") {
			return v, true
		}
	}
	return nil, false
}

// ArgumentRecords returns the records carried in arguments[0].Data
func (f Frame) ArgumentRecords() ([]normalize.Record, error) {
	if len(f.Arguments) == 0 {
		return nil, errors.Wrap(errors.ErrMalformedInput, "frame has no arguments")
	}
	return decodeRecords(f.Arguments[0])
}

// ResultRecords returns the records of a completion result, which is
// either a bare list or an object with a Data list.
func (f Frame) ResultRecords() ([]normalize.Record, error) {
	if len(f.Result) == 0 {
		return nil, errors.Wrap(errors.ErrMalformedInput, "completion has no result")
	}
	trimmed := bytes.TrimSpace(f.Result)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return decodeList(trimmed)
	}
	return decodeRecords(trimmed)
}

// ResultObject decodes the completion result as one object
func (f Frame) ResultObject() (normalize.Record, error) {
	var rec normalize.Record
	if err := decodeNumbers(f.Result, &rec); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedInput, err.Error())
	}
	return rec, nil
}

func decodeRecords(raw json.RawMessage) ([]normalize.Record, error) {
	var env dataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedInput, "payload is not an object")
	}
	data, ok := env.data()
	if !ok {
		return nil, errors.Wrap(errors.ErrMalformedInput, "payload has no Data")
	}
	return decodeList(data)
}

func decodeList(raw json.RawMessage) ([]normalize.Record, error) {
	if string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedInput, "Data is not a list")
	}
	out := make([]normalize.Record, 0, len(items))
	for _, item := range items {
		var rec normalize.Record
		if err := decodeNumbers(item, &rec); err != nil || rec == nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// decodeNumbers keeps numbers as json.Number so large ids stay exact
func decodeNumbers(raw json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
