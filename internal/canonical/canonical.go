// Package canonical implements the deterministic byte encoding used as
// hash input for evidence ledger entries.
//
// Two structurally equal values always encode to identical bytes,
// regardless of map insertion order or which Go numeric kind was used
// to build them. The output is plain JSON with object keys sorted
// bytewise at every nesting level, no insignificant whitespace, and
// non-ASCII characters emitted literally as UTF-8 rather than
// \uXXXX-escaped.
//
// Numeric convention (every writer and verifier in a deployment must
// agree on it): values that are integers render in base 10 with no
// decimal point and no exponent; everything else renders as a float64
// in the shortest round-trip form, with the same f/e switchover and
// exponent cleanup as encoding/json. "1.50" therefore canonicalizes to
// "1.5". Integers outside int64 exactness are not supported in
// payloads. NaN and infinities are rejected.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Marshal encodes v into its canonical byte form. v must be composed
// of JSON-shaped values: nil, bool, string, Go numeric kinds,
// json.Number, []any and map[string]any. Anything else is an error;
// there is deliberately no best-effort fallback, because a silently
// divergent encoding would break cross-implementation verification.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		encodeString(buf, x)
	case json.Number:
		return encodeNumber(buf, x)
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
	case float32:
		return encodeFloat(buf, float64(x), 32)
	case float64:
		return encodeFloat(buf, x, 64)
	case []any:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			if err := encode(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}

// encodeString writes s as a JSON string literal. Only the quote,
// backslash and control characters are escaped; everything else,
// including multi-byte UTF-8 sequences, passes through literally.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch b {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if b < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, b)
			} else {
				buf.WriteByte(b)
			}
		}
	}
	buf.WriteByte('"')
}

// encodeNumber renders a json.Number: exact int64 values take the
// integer form, everything else goes through the float path.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return fmt.Errorf("canonical: malformed number %q", string(n))
	}
	return encodeFloat(buf, f, 64)
}

// encodeFloat matches encoding/json's float formatting: shortest
// round-trip form, 'f' notation for ordinary magnitudes and 'e' for
// abs < 1e-6 or >= 1e21, with "e-0X" exponents trimmed to "e-X".
func encodeFloat(buf *bytes.Buffer, f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: unsupported float value %v", f)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, f, format, -1, bits)
	if format == 'e' {
		if n := len(b); n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	buf.Write(b)
	return nil
}
