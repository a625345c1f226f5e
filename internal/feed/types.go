package feed

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// RawEvent is one record of the calendar snapshot, exactly as supplied.
type RawEvent struct {
	Country  Value `json:"country"`
	Title    Value `json:"title"`
	Date     Value `json:"date"`
	Impact   Value `json:"impact"`
	Forecast Value `json:"forecast"`
	Previous Value `json:"previous"`
}

// Value is a leniently decoded JSON scalar. Strings, numbers and booleans are
// kept in their textual form; null, objects and arrays leave Set false.
type Value struct {
	Text string
	Set  bool
}

// V builds a set Value, mostly for tests.
func V(s string) Value { return Value{Text: s, Set: true} }

// Present reports whether the field was supplied with a non-blank value.
func (v Value) Present() bool { return v.Set && len(bytes.TrimSpace([]byte(v.Text))) > 0 }

func (v Value) String() string { return v.Text }

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*v = Value{}
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value{Text: s, Set: true}
	case 't', 'f':
		var x bool
		if err := json.Unmarshal(b, &x); err != nil {
			return err
		}
		*v = Value{Text: strconv.FormatBool(x), Set: true}
	case 'n', '{', '[':
		// null or a structured value: treat as absent.
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*v = Value{Text: n.String(), Set: true}
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Set {
		return []byte("null"), nil
	}
	return json.Marshal(v.Text)
}
