package signing

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrEncoding reports a payload that cannot be canonically encoded. Malformed
// input is always recoverable; callers surface it as a rejected operation.
var ErrEncoding = errors.New("payload not canonically encodable")

// Encode deterministically serializes a flat payload into one exact byte
// sequence, independent of map iteration or construction order. The encoding
// is the signing input: two payloads with identical key/value sets always
// produce identical bytes, and any field change produces different bytes.
//
// Rules:
//   - keys sorted lexicographically by byte value
//   - compact JSON, no insignificant whitespace
//   - one escaping rule per character: `"` and `\` as two-char escapes,
//     \b \f \n \r \t short forms, remaining control characters as \u00XX,
//     everything else raw UTF-8
//   - values must be scalars; numbers and dates arrive as their exact source
//     string representation (or Number), never as pre-parsed floats
//
// Nested structures, float types, and invalid UTF-8 fail with ErrEncoding.
func Encode(payload map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if !utf8.ValidString(k) {
			return nil, fmt.Errorf("%w: key is not valid UTF-8", ErrEncoding)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(&b, k)
		b.WriteByte(':')
		if err := writeValue(&b, k, payload[k]); err != nil {
			return nil, err
		}
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Number carries an exact numeric literal through encoding untouched. Use it
// when a collaborator insists on a numeric wire type; ids and dates should
// stay strings.
type Number string

func writeValue(b *strings.Builder, key string, v any) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		if !utf8.ValidString(val) {
			return fmt.Errorf("%w: value for %q is not valid UTF-8", ErrEncoding, key)
		}
		writeString(b, val)
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(val, 10))
	case Number:
		if !validNumberLiteral(string(val)) {
			return fmt.Errorf("%w: value for %q is not a number literal", ErrEncoding, key)
		}
		b.WriteString(string(val))
	case float32, float64:
		// Floats round differently across platforms; the signed bytes must
		// not depend on where they were produced.
		return fmt.Errorf("%w: value for %q is a float; pass the source string", ErrEncoding, key)
	default:
		return fmt.Errorf("%w: value for %q is not a scalar", ErrEncoding, key)
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[r>>4])
				b.WriteByte(hexDigits[r&0xf])
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

func validNumberLiteral(s string) bool {
	if s == "" {
		return false
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
