package sources

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/rostertrack/rostertrack/internal/status"
)

// objectListKeys are the keys under which an object payload carries its
// entries, in priority order
var objectListKeys = []string{"Participants list", "participants"}

// identifierKeys are tried in order; the first usable value wins
var identifierKeys = []string{"playerId", "PlayerId", "id"}

// ParseResult is a decoded roster payload
type ParseResult struct {
	Roster  status.Roster
	Shape   Shape
	Skipped int
}

// ParseRoster decodes an upstream roster payload.
//
// Entries that are not objects, lack an identifier or lack a name are
// skipped. Repeated identifiers keep their first occurrence. A payload
// that lists entries of which none is usable fails with ErrNoValidEntries.
func ParseRoster(data []byte) (*ParseResult, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrUnrecognizedShape)
	}

	doc := gjson.ParseBytes(data)
	var (
		entries []gjson.Result
		shape   Shape
	)

	switch {
	case doc.IsArray():
		shape = ShapeArray
		entries = doc.Array()
	case doc.IsObject():
		shape = ShapeObject
		list, ok := objectEntries(doc)
		if !ok {
			return nil, fmt.Errorf("%w: object without a participant list", ErrUnrecognizedShape)
		}
		entries = list
	default:
		return nil, fmt.Errorf("%w: top-level %s", ErrUnrecognizedShape, doc.Type)
	}

	res := &ParseResult{Shape: shape, Roster: make(status.Roster, 0, len(entries))}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		entry, ok := parseEntry(e)
		if !ok {
			res.Skipped++
			continue
		}
		if _, dup := seen[entry.ParticipantID]; dup {
			res.Skipped++
			continue
		}
		seen[entry.ParticipantID] = struct{}{}
		res.Roster = append(res.Roster, entry)
	}

	if len(entries) > 0 && len(res.Roster) == 0 {
		return nil, fmt.Errorf("%w (%d entries)", ErrNoValidEntries, len(entries))
	}
	return res, nil
}

// objectEntries picks the first non-empty list among the known keys.
// It reports false when none of the keys holds an array at all.
func objectEntries(doc gjson.Result) ([]gjson.Result, bool) {
	fields := doc.Map()
	found := false
	for _, key := range objectListKeys {
		v, ok := fields[key]
		if !ok || !v.IsArray() {
			continue
		}
		found = true
		if list := v.Array(); len(list) > 0 {
			return list, true
		}
	}
	return nil, found
}

func parseEntry(e gjson.Result) (status.RosterEntry, bool) {
	if !e.IsObject() {
		return status.RosterEntry{}, false
	}
	fields := e.Map()

	id := ""
	for _, key := range identifierKeys {
		if id = identifier(fields[key]); id != "" {
			break
		}
	}
	if id == "" {
		return status.RosterEntry{}, false
	}

	name := fields["name"]
	if name.Type != gjson.String || name.Str == "" {
		return status.RosterEntry{}, false
	}

	return status.RosterEntry{ParticipantID: id, DisplayName: name.Str}, true
}

// identifier renders a usable identifier value. Numbers keep their JSON
// text so large IDs survive without float rounding.
func identifier(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		if v.Num == 0 {
			return ""
		}
		return v.Raw
	default:
		return ""
	}
}
