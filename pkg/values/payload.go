// Package values carries typed channel values between the HTTP surface
// and adapters, in either structured (JSON) or opaque binary form.
package values

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	MediaTypeJSON   = "application/json"
	MediaTypeBinary = "application/octet-stream"
)

type Format uint8

const (
	FormatJSON Format = iota
	FormatBinary
)

func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "json"
}

// Binary is an opaque blob tagged with the mimetype it was declared
// with. The bytes are never inspected by this layer.
type Binary struct {
	MimeType string `json:"mimetype"`
	Data     []byte `json:"data"`
}

// Payload is a value paired with its encoding format. Exactly one of
// the two representations is populated.
type Payload struct {
	format Format
	json   json.RawMessage
	binary Binary
}

func JSONPayload(raw json.RawMessage) Payload {
	return Payload{format: FormatJSON, json: raw}
}

func BinaryPayload(data []byte, mimetype string) Payload {
	if strings.TrimSpace(mimetype) == "" {
		mimetype = MediaTypeBinary
	}
	return Payload{format: FormatBinary, binary: Binary{MimeType: mimetype, Data: data}}
}

// Decode interprets a whole request body according to its declared
// content type. A structured content type parses the full text as JSON;
// anything else keeps every byte as an opaque blob tagged with the
// declared mimetype (octet-stream when absent). There is no partial or
// streaming decode.
func Decode(body []byte, contentType string) (Payload, error) {
	ct := strings.TrimSpace(contentType)
	if strings.HasPrefix(ct, MediaTypeJSON) {
		var probe any
		if err := json.Unmarshal(body, &probe); err != nil {
			if syn, ok := err.(*json.SyntaxError); ok {
				return Payload{}, fmt.Errorf("invalid json at offset %d: %w", syn.Offset, err)
			}
			return Payload{}, fmt.Errorf("invalid json: %w", err)
		}
		raw := make(json.RawMessage, len(body))
		copy(raw, body)
		return JSONPayload(raw), nil
	}
	if ct == "" {
		ct = MediaTypeBinary
	}
	data := make([]byte, len(body))
	copy(data, body)
	return BinaryPayload(data, ct), nil
}

func (p Payload) Format() Format {
	return p.format
}

// JSON returns the structured representation, if this is a structured
// payload.
func (p Payload) JSON() (json.RawMessage, bool) {
	if p.format != FormatJSON {
		return nil, false
	}
	return p.json, true
}

// Binary returns the opaque representation, if this is a binary
// payload.
func (p Payload) Binary() (Binary, bool) {
	if p.format != FormatBinary {
		return Binary{}, false
	}
	return p.binary, true
}

// Encode is the inverse of Decode: structured payloads serialize to
// their JSON text, binary payloads to their raw bytes with no wrapping.
func (p Payload) Encode() (data []byte, contentType string) {
	if p.format == FormatBinary {
		return p.binary.Data, p.binary.MimeType
	}
	if len(p.json) == 0 {
		return []byte("null"), MediaTypeJSON
	}
	return p.json, MediaTypeJSON
}

// MarshalJSON renders a structured payload inline and a binary payload
// as a mimetype + base64 envelope, so binary values survive inside JSON
// result maps.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.format == FormatBinary {
		return json.Marshal(struct {
			MimeType string `json:"mimetype"`
			Data     string `json:"data"`
		}{p.binary.MimeType, base64.StdEncoding.EncodeToString(p.binary.Data)})
	}
	if len(p.json) == 0 {
		return []byte("null"), nil
	}
	return p.json, nil
}

// UnmarshalJSON treats any JSON value as a structured payload; target
// maps in request bodies express payloads as plain JSON.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid payload json")
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	*p = JSONPayload(raw)
	return nil
}
