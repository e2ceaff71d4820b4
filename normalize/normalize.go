// Package normalize canonicalizes records delivered by the RPA feed.
//
// Feed payloads spell the same field many ways (ExecutionID, executionId,
// execution_id, "Execution Id"). Normalize produces a record with lowercase
// keys plus two guaranteed fields: "executionid" and "state_lower". All
// functions are pure.
package normalize

import (
	"sort"
	"strings"
)

// Record is one decoded JSON object from the feed.
type Record map[string]any

// Canonical keys guaranteed by Normalize.
const (
	KeyExecutionID = "executionid"
	KeyStateLower  = "state_lower"
)

var faultStates = map[string]struct{}{
	"fault":   {},
	"faulted": {},
	"error":   {},
	"failed":  {},
}

// FaultStates returns the canonical fault states in sorted order.
func FaultStates() []string {
	out := make([]string, 0, len(faultStates))
	for s := range faultStates {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsFault reports whether state, canonicalized, is a fault state.
func IsFault(state string) bool {
	_, ok := faultStates[strings.ToLower(strings.TrimSpace(state))]
	return ok
}

// IdentityKey returns the execution id of rec. Keys are compared
// case-insensitively with separators ignored; a key matches when it equals
// or ends with "executionid". Null and empty values do not count.
func IdentityKey(rec Record) (string, bool) {
	return ExecutionID.String(rec)
}

// CanonicalState returns the lowercased, trimmed state of rec, or "".
func CanonicalState(rec Record) string {
	s, _ := State.String(rec)
	return strings.ToLower(strings.TrimSpace(s))
}

// Normalize returns a copy of rec with lowercased keys and guaranteed
// "executionid" (when an identity exists) and "state_lower" fields.
// Normalizing a normalized record is a no-op.
func Normalize(rec Record) Record {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	// Sorted so colliding spellings ("State", "state") resolve the same way every time
	sort.Strings(keys)

	out := make(Record, len(rec)+2)
	for _, k := range keys {
		out[strings.ToLower(strings.TrimSpace(k))] = rec[k]
	}

	if id, ok := stringValue(out[KeyExecutionID]); !ok || id == "" {
		if id, ok := IdentityKey(rec); ok {
			out[KeyExecutionID] = id
		}
	}

	state := CanonicalState(out)
	if state == "" {
		if existing, ok := stringValue(out[KeyStateLower]); ok {
			state = strings.ToLower(strings.TrimSpace(existing))
		}
	}
	out[KeyStateLower] = state

	return out
}

// ExecutionIDOf returns the guaranteed identity of a normalized record.
func (r Record) ExecutionIDOf() string {
	id, _ := stringValue(r[KeyExecutionID])
	return id
}

// StateLower returns the guaranteed canonical state of a normalized record.
func (r Record) StateLower() string {
	s, _ := stringValue(r[KeyStateLower])
	return s
}
