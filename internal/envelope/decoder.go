// Package envelope unwraps queue message bodies into notification payloads.
//
// Three body shapes are accepted, tried in order:
//   - raw delivery: {"payload": {...}}
//   - pub/sub envelope: {"Message": "<json>" | {...}, "MessageAttributes": {...}}
//   - bare payload: the body itself is the payload
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"unicode/utf8"

	"github.com/sungwon/notification-pipeline/internal/errclass"
)

// MaxPreview is the longest body excerpt carried by a DecodeError.
const MaxPreview = 500

// Attribute is a typed message attribute as carried by SQS records and SNS
// envelopes.
type Attribute struct {
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

// Decoded is the result of unwrapping a message body.
type Decoded struct {
	Payload          any
	Attributes       map[string]Attribute
	RawDelivery      bool
	EnvelopeDetected bool
}

// DecodeError reports a body that could not be parsed. It never carries more
// than MaxPreview characters of the body.
type DecodeError struct {
	Preview string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message body: %v (preview: %q)", e.Err, e.Preview)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrorKind implements errclass.Kinded.
func (e *DecodeError) ErrorKind() errclass.Kind { return errclass.KindValidation }

// Preview truncates body to at most MaxPreview characters.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= MaxPreview {
		return body
	}
	runes := []rune(body)
	return string(runes[:MaxPreview])
}

// Decode unwraps body into a payload. attrs are the transport attributes found
// directly on the queue record; they override attributes recovered from a
// nested envelope.
func Decode(body string, attrs map[string]Attribute) (*Decoded, error) {
	var parsed any
	if err := unmarshal([]byte(body), &parsed); err != nil {
		return nil, &DecodeError{Preview: Preview(body), Err: err}
	}

	out := &Decoded{Payload: parsed, Attributes: map[string]Attribute{}}

	obj, ok := parsed.(map[string]any)
	if !ok {
		maps.Copy(out.Attributes, attrs)
		return out, nil
	}

	if p, ok := obj["payload"]; ok {
		out.Payload = p
		out.RawDelivery = true
		maps.Copy(out.Attributes, attrs)
		return out, nil
	}

	if msg, ok := obj["Message"]; ok {
		out.EnvelopeDetected = true

		inner, err := parseMessage(msg)
		if err != nil {
			return nil, &DecodeError{Preview: Preview(body), Err: err}
		}
		if innerObj, ok := inner.(map[string]any); ok {
			if p, ok := innerObj["payload"]; ok {
				inner = p
			}
		}
		out.Payload = inner

		maps.Copy(out.Attributes, envelopeAttributes(obj["MessageAttributes"]))
	}

	maps.Copy(out.Attributes, attrs)
	return out, nil
}

// parseMessage parses an envelope's Message field, which is either a JSON
// encoded string or an already-decoded value.
func parseMessage(msg any) (any, error) {
	s, ok := msg.(string)
	if !ok {
		return msg, nil
	}
	var inner any
	if err := unmarshal([]byte(s), &inner); err != nil {
		return nil, fmt.Errorf("envelope Message: %w", err)
	}
	return inner, nil
}

// envelopeAttributes reads an SNS style {"Name": {"Type": ..., "Value": ...}}
// map. Entries of any other shape are skipped.
func envelopeAttributes(raw any) map[string]Attribute {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]Attribute, len(m))
	for name, v := range m {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		var attr Attribute
		attr.Type, _ = entry["Type"].(string)
		switch val := entry["Value"].(type) {
		case string:
			attr.Value = val
		case nil:
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			attr.Value = string(b)
		}
		out[name] = attr
	}
	return out
}

// unmarshal decodes a single JSON value, keeping numbers as json.Number so
// identifiers survive re-encoding untouched.
func unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
