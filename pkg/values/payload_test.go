package values

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	p, err := Decode([]byte(`{"on":true}`), "application/json")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Format() != FormatJSON {
		t.Fatalf("expected json format, got %v", p.Format())
	}
	raw, ok := p.JSON()
	if !ok || string(raw) != `{"on":true}` {
		t.Fatalf("expected raw json preserved, got %s ok=%v", raw, ok)
	}
	if _, ok := p.Binary(); ok {
		t.Fatal("expected no binary representation")
	}
}

func TestDecodeJSONWithCharset(t *testing.T) {
	p, err := Decode([]byte(`[1,2]`), "application/json; charset=utf-8")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Format() != FormatJSON {
		t.Fatalf("expected json format, got %v", p.Format())
	}
}

func TestDecodeJSONSyntaxError(t *testing.T) {
	_, err := Decode([]byte(`{"on":tru`), "application/json")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !strings.Contains(err.Error(), "offset") {
		t.Fatalf("expected offset in error, got %v", err)
	}
}

func TestDecodeBinary(t *testing.T) {
	body := []byte{1, 2, 3, 10, 11, 12}
	p, err := Decode(body, "image/png")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bin, ok := p.Binary()
	if !ok {
		t.Fatal("expected binary payload")
	}
	if bin.MimeType != "image/png" {
		t.Fatalf("expected declared mimetype, got %s", bin.MimeType)
	}
	if !bytes.Equal(bin.Data, body) {
		t.Fatalf("expected bytes preserved, got %v", bin.Data)
	}

	// Decode copies; mutating the caller's buffer must not leak in.
	body[0] = 99
	bin, _ = p.Binary()
	if bin.Data[0] != 1 {
		t.Fatal("expected decoded bytes isolated from the input buffer")
	}
}

func TestDecodeDefaultsMimetype(t *testing.T) {
	p, err := Decode([]byte{0xff}, "")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bin, ok := p.Binary()
	if !ok || bin.MimeType != MediaTypeBinary {
		t.Fatalf("expected octet-stream default, got %+v ok=%v", bin, ok)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Run("binary", func(t *testing.T) {
		body := []byte{1, 2, 3, 10, 11, 12}
		p, err := Decode(body, "image/png")
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		data, ct := p.Encode()
		if ct != "image/png" || !bytes.Equal(data, body) {
			t.Fatalf("expected byte-identical round trip, got %v %s", data, ct)
		}
	})
	t.Run("json", func(t *testing.T) {
		p, err := Decode([]byte(`"hello"`), "application/json")
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		data, ct := p.Encode()
		if ct != MediaTypeJSON || string(data) != `"hello"` {
			t.Fatalf("expected json round trip, got %s %s", data, ct)
		}
	})
	t.Run("zero_value", func(t *testing.T) {
		var p Payload
		data, ct := p.Encode()
		if ct != MediaTypeJSON || string(data) != "null" {
			t.Fatalf("expected null json, got %s %s", data, ct)
		}
	})
}

func TestPayloadMarshalJSON(t *testing.T) {
	t.Run("binary_envelope", func(t *testing.T) {
		p := BinaryPayload([]byte{1, 2, 3}, "image/png")
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var env struct {
			MimeType string `json:"mimetype"`
			Data     string `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.MimeType != "image/png" || env.Data != "AQID" {
			t.Fatalf("expected base64 envelope, got %+v", env)
		}
	})
	t.Run("json_inline", func(t *testing.T) {
		p := JSONPayload(json.RawMessage(`{"a":1}`))
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(raw) != `{"a":1}` {
			t.Fatalf("expected inline json, got %s", raw)
		}
	})
}

func TestPayloadUnmarshalJSON(t *testing.T) {
	var p Payload
	if err := json.Unmarshal([]byte(`[1,2,3]`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Format() != FormatJSON {
		t.Fatalf("expected json payload, got %v", p.Format())
	}
	if err := p.UnmarshalJSON([]byte(`{"bad":`)); err == nil {
		t.Fatal("expected error on invalid json")
	}
}

func TestBinaryPayloadDefaultsMimetype(t *testing.T) {
	p := BinaryPayload([]byte{1}, "   ")
	bin, _ := p.Binary()
	if bin.MimeType != MediaTypeBinary {
		t.Fatalf("expected octet-stream default, got %s", bin.MimeType)
	}
}

func TestFormatString(t *testing.T) {
	if FormatJSON.String() != "json" || FormatBinary.String() != "binary" {
		t.Fatal("unexpected format names")
	}
}
