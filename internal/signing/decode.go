package signing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrDecoding reports scanned bytes that are not a flat JSON object of
// scalars. Everything a scanner can hand us goes through here first.
var ErrDecoding = errors.New("payload not decodable")

// DecodeObject parses raw scanned bytes into the payload form Encode accepts.
// Numbers come back as Number so their exact source literal survives a
// decode/encode round trip; float re-parsing would break signature checks.
// Nested objects and arrays are rejected, as are duplicate keys hiding behind
// the last-one-wins behavior of ordinary JSON decoding.
func DecodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrDecoding)
	}

	payload := make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
		}
		key := keyTok.(string)
		if _, dup := payload[key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrDecoding, key)
		}

		valTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
		}
		switch val := valTok.(type) {
		case string:
			payload[key] = val
		case bool:
			payload[key] = val
		case nil:
			payload[key] = nil
		case json.Number:
			payload[key] = Number(val)
		case json.Delim:
			return nil, fmt.Errorf("%w: value for %q is not a scalar", ErrDecoding, key)
		default:
			return nil, fmt.Errorf("%w: value for %q has unsupported type", ErrDecoding, key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	// Anything after the closing brace means the input was not one object.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrDecoding)
	}
	return payload, nil
}
