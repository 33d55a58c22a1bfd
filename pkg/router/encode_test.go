package router

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/nathan8299/foxbox/pkg/taxonomy"
	"github.com/nathan8299/foxbox/pkg/values"
)

func TestBinaryFromFetch(t *testing.T) {
	bin := values.BinaryPayload([]byte{1, 2, 3}, "image/png")
	jsn := values.JSONPayload(json.RawMessage(`42`))

	t.Run("singleton_binary", func(t *testing.T) {
		got, ok := binaryFromFetch(taxonomy.FetchResult{"a": {Payload: &bin}})
		if !ok || got.MimeType != "image/png" || !bytes.Equal(got.Data, []byte{1, 2, 3}) {
			t.Fatalf("expected binary collapse, got %+v ok=%v", got, ok)
		}
	})
	t.Run("singleton_json", func(t *testing.T) {
		if _, ok := binaryFromFetch(taxonomy.FetchResult{"a": {Payload: &jsn}}); ok {
			t.Fatal("expected no collapse for json payload")
		}
	})
	t.Run("singleton_error", func(t *testing.T) {
		res := taxonomy.FetchResult{"a": {Err: taxonomy.NewError(taxonomy.ErrCodeNoSuchChannel, "gone")}}
		if _, ok := binaryFromFetch(res); ok {
			t.Fatal("expected no collapse for error entry")
		}
	})
	t.Run("singleton_nil_payload", func(t *testing.T) {
		if _, ok := binaryFromFetch(taxonomy.FetchResult{"a": {}}); ok {
			t.Fatal("expected no collapse for empty entry")
		}
	})
	t.Run("two_entries", func(t *testing.T) {
		res := taxonomy.FetchResult{"a": {Payload: &bin}, "b": {Payload: &bin}}
		if _, ok := binaryFromFetch(res); ok {
			t.Fatal("expected no collapse for two entries")
		}
	})
	t.Run("empty_map", func(t *testing.T) {
		if _, ok := binaryFromFetch(taxonomy.FetchResult{}); ok {
			t.Fatal("expected no collapse for empty map")
		}
	})
}
