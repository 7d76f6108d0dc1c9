// Package capture moves an ordered list of typed values from the parent test
// process to the child that runs an exit-test body.
//
// Each value is encoded independently into a single self-describing blob that
// survives transport through an environment variable. The child decodes the
// blob positionally against the slot types declared at registration time.
// Any disagreement between the two sides - element count, slot type, or a
// payload that does not parse - is a ProtocolError: it means the parent and
// child are not running the same code, so the child aborts rather than run a
// body with the wrong inputs.
package capture

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Type names the kind of value a slot holds. The name travels on the wire
// and is validated on decode.
type Type string

const (
	TBool    Type = "bool"
	TInt64   Type = "int64"
	TUint64  Type = "uint64"
	TFloat64 Type = "float64"
	TString  Type = "string"
	TBytes   Type = "bytes"
)

// Value is a typed slot: a known type plus, once set, a concrete value. On
// the parent side values are set before transmission; on the child side they
// are injected by Decode.
type Value struct {
	typ Type
	set bool
	val any
}

func Bool(v bool) Value      { return Value{typ: TBool, set: true, val: v} }
func Int64(v int64) Value    { return Value{typ: TInt64, set: true, val: v} }
func Uint64(v uint64) Value  { return Value{typ: TUint64, set: true, val: v} }
func Float64(v float64) Value { return Value{typ: TFloat64, set: true, val: v} }
func String(v string) Value  { return Value{typ: TString, set: true, val: v} }
func Bytes(v []byte) Value   { return Value{typ: TBytes, set: true, val: v} }

// Type returns the slot's declared type.
func (v Value) Type() Type { return v.typ }

// IsSet reports whether the slot holds a value yet.
func (v Value) IsSet() bool { return v.set }

// Conform checks a list of parent-side values against the slot types the
// body declared at registration. It catches a parent passing the wrong
// values before anything is spawned.
func Conform(vals []Value, want []Type) error {
	if len(vals) != len(want) {
		return &ProtocolError{Reason: fmt.Sprintf("captured %d values, registration declares %d slots", len(vals), len(want))}
	}
	for i, v := range vals {
		if v.typ != want[i] {
			return &ProtocolError{Reason: fmt.Sprintf("captured value %d is %s, registration declares %s", i, v.typ, want[i])}
		}
		if !v.set {
			return &ProtocolError{Reason: fmt.Sprintf("captured value %d has no value", i)}
		}
	}
	return nil
}

type wireValue struct {
	Type  Type            `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Encode serializes values into a blob suitable for an environment variable.
// Integers are carried as strings so 64-bit values survive JSON number
// handling; bytes are base64.
func Encode(vals []Value) (string, error) {
	wire := make([]wireValue, 0, len(vals))
	for i, v := range vals {
		if !v.set {
			return "", &ProtocolError{Reason: fmt.Sprintf("captured value %d has no value", i)}
		}
		var payload any
		switch v.typ {
		case TBool, TFloat64, TString:
			payload = v.val
		case TInt64:
			payload = strconv.FormatInt(v.val.(int64), 10)
		case TUint64:
			payload = strconv.FormatUint(v.val.(uint64), 10)
		case TBytes:
			payload = base64.StdEncoding.EncodeToString(v.val.([]byte))
		default:
			return "", &ProtocolError{Reason: fmt.Sprintf("captured value %d has unknown type %q", i, v.typ)}
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", &ProtocolError{Reason: fmt.Sprintf("encoding captured value %d", i), Err: err}
		}
		wire = append(wire, wireValue{Type: v.typ, Value: raw})
	}

	blob, err := json.Marshal(wire)
	if err != nil {
		return "", &ProtocolError{Reason: "encoding captured values", Err: err}
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decode parses a blob produced by Encode, validating element count and each
// element's type against the declared slot types before injecting any value.
func Decode(blob string, want []Type) (*Values, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, &ProtocolError{Reason: "captured value blob is not valid base64", Err: err}
	}

	var wire []wireValue
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ProtocolError{Reason: "captured value blob is not valid JSON", Err: err}
	}

	if len(wire) != len(want) {
		return nil, &ProtocolError{Reason: fmt.Sprintf("decoded %d values, expected %d", len(wire), len(want))}
	}

	vals := make([]Value, 0, len(wire))
	for i, w := range wire {
		if w.Type != want[i] {
			return nil, &ProtocolError{Reason: fmt.Sprintf("decoded value %d is %s, expected %s", i, w.Type, want[i])}
		}
		v, err := decodeOne(w)
		if err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("decoding value %d (%s)", i, w.Type), Err: err}
		}
		vals = append(vals, v)
	}
	return &Values{vals: vals}, nil
}

func decodeOne(w wireValue) (Value, error) {
	switch w.Type {
	case TBool:
		var v bool
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return Value{}, err
		}
		return Bool(v), nil
	case TFloat64:
		var v float64
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return Value{}, err
		}
		return Float64(v), nil
	case TString:
		var v string
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return Value{}, err
		}
		return String(v), nil
	case TInt64:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Value{}, err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Int64(v), nil
	case TUint64:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Value{}, err
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Uint64(v), nil
	case TBytes:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Value{}, err
		}
		v, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, err
		}
		return Bytes(v), nil
	default:
		return Value{}, fmt.Errorf("unknown type %q", w.Type)
	}
}

// Values is the decoded, positionally-addressed list handed to an exit-test
// body. The typed accessors panic with a *ProtocolError on a slot mismatch;
// inside the child that panic is converted into the protocol abort, which is
// the required outcome for a slot disagreement.
type Values struct {
	vals []Value
}

// Len returns the number of slots.
func (vs *Values) Len() int {
	if vs == nil {
		return 0
	}
	return len(vs.vals)
}

func (vs *Values) at(i int, want Type) any {
	if vs == nil || i < 0 || i >= len(vs.vals) {
		panic(&ProtocolError{Reason: fmt.Sprintf("captured value %d accessed, %d slots declared", i, vs.Len())})
	}
	v := vs.vals[i]
	if v.typ != want || !v.set {
		panic(&ProtocolError{Reason: fmt.Sprintf("captured value %d is %s, not %s", i, v.typ, want)})
	}
	return v.val
}

func (vs *Values) Bool(i int) bool       { return vs.at(i, TBool).(bool) }
func (vs *Values) Int64(i int) int64     { return vs.at(i, TInt64).(int64) }
func (vs *Values) Uint64(i int) uint64   { return vs.at(i, TUint64).(uint64) }
func (vs *Values) Float64(i int) float64 { return vs.at(i, TFloat64).(float64) }
func (vs *Values) String(i int) string   { return vs.at(i, TString).(string) }
func (vs *Values) Bytes(i int) []byte    { return vs.at(i, TBytes).([]byte) }

// Raw returns the underlying slots, mainly for tests.
func (vs *Values) Raw() []Value {
	if vs == nil {
		return nil
	}
	return vs.vals
}

// ProtocolError reports a disagreement between the parent and child halves
// of the captured-value channel. It is never a recoverable test outcome: the
// child aborts on it, and the parent records it as an infrastructure issue.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("captured value protocol: %s: %v", e.Reason, e.Err)
	}
	return "captured value protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }
