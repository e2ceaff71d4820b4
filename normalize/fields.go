package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FieldSpec declares which source spellings map onto one canonical field.
// Matching happens on canonicalKey(key) unless CaseOnly is set, in which case
// only case is ignored.
type FieldSpec struct {
	Canonical string
	Aliases   []string // canonicalized spellings, in priority order
	Suffix    string   // also accept keys ending with this (canonicalized)
	CaseOnly  bool
}

// Declared mapping for execution and log records.
var (
	ExecutionID = FieldSpec{Canonical: "executionid", Aliases: []string{"executionid"}, Suffix: "executionid"}
	State       = FieldSpec{Canonical: "state", CaseOnly: true}

	Process     = FieldSpec{Canonical: "process", Aliases: []string{"process", "processname"}}
	Robot       = FieldSpec{Canonical: "robot", Aliases: []string{"robot", "robotname"}}
	EntryFile   = FieldSpec{Canonical: "entryfile", Aliases: []string{"entryfile"}}
	Environment = FieldSpec{Canonical: "environment", Aliases: []string{"environment", "env"}}
	StartTime   = FieldSpec{Canonical: "starttime", Aliases: []string{"starttime"}}
	EndTime     = FieldSpec{Canonical: "endtime", Aliases: []string{"endtime"}}
	Source      = FieldSpec{Canonical: "source", Aliases: []string{"source"}}
	Tenant      = FieldSpec{Canonical: "tenant", Aliases: []string{"tenant", "tenantname"}}

	LogID       = FieldSpec{Canonical: "logid", Aliases: []string{"logid", "id"}}
	LogTime     = FieldSpec{Canonical: "time", Aliases: []string{"time"}}
	Level       = FieldSpec{Canonical: "level", Aliases: []string{"level"}}
	Message     = FieldSpec{Canonical: "message", Aliases: []string{"message", "msg"}}
	MachineName = FieldSpec{Canonical: "machinename", Aliases: []string{"machinename", "machine"}}
	UserName    = FieldSpec{Canonical: "username", Aliases: []string{"username", "user"}}
	ProcessName = FieldSpec{Canonical: "processname", Aliases: []string{"processname", "process"}}
	DateTime    = FieldSpec{Canonical: "datetime", Aliases: []string{"datetime"}}
)

// canonicalKey lowercases k and drops separators.
func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer("_", "", " ", "", "-", "").Replace(k)
}

// rank orders how well key matches f; lower wins, -1 is no match.
func (f FieldSpec) rank(key string) int {
	if f.CaseOnly {
		if strings.EqualFold(strings.TrimSpace(key), f.Canonical) {
			return 0
		}
		return -1
	}

	if key == f.Canonical {
		return 0
	}
	ck := canonicalKey(key)
	for i, alias := range f.Aliases {
		if ck == alias {
			return 1 + i
		}
	}
	if f.Suffix != "" && strings.HasSuffix(ck, f.Suffix) {
		return 1 + len(f.Aliases)
	}
	return -1
}

// Keys returns the keys of rec matching f in priority order.
func (f FieldSpec) Keys(rec Record) []string {
	type match struct {
		key  string
		rank int
	}
	var matches []match
	for k := range rec {
		if r := f.rank(k); r >= 0 {
			matches = append(matches, match{key: k, rank: r})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return matches[i].key < matches[j].key
	})

	keys := make([]string, len(matches))
	for i, m := range matches {
		keys[i] = m.key
	}
	return keys
}

// String returns the first non-empty value of rec for f, rendered as a string.
func (f FieldSpec) String(rec Record) (string, bool) {
	for _, k := range f.Keys(rec) {
		if s, ok := stringValue(rec[k]); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// stringValue renders scalar JSON values. Numbers print without exponent
// so a numeric log id 42 becomes "42".
func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool, int, int32, int64, uint, uint32, uint64, float32:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}
