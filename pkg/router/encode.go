package router

import (
	"net/http"

	"github.com/nathan8299/foxbox/pkg/httpx"
	"github.com/nathan8299/foxbox/pkg/taxonomy"
	"github.com/nathan8299/foxbox/pkg/values"
)

// ParseError is the 400 body for a malformed or incomplete request
// body. Path locates the offending field ("body", "body.tags", ...).
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"error"`
}

func writeParseError(w http.ResponseWriter, path string, err error) {
	httpx.WriteJSON(w, http.StatusBadRequest, ParseError{Path: path, Message: err.Error()})
}

// binaryFromFetch decides whether a fetch result collapses to a raw
// binary response: the map must hold exactly one entry, and that entry
// must be a successful binary value. A lone error, a lone non-binary
// value, or any broader map falls through to JSON encoding.
func binaryFromFetch(res taxonomy.FetchResult) (values.Binary, bool) {
	if len(res) != 1 {
		return values.Binary{}, false
	}
	for _, entry := range res {
		if entry.Err != nil || entry.Payload == nil {
			break
		}
		if bin, ok := entry.Payload.Binary(); ok {
			return bin, true
		}
	}
	return values.Binary{}, false
}

func writeFetchResult(w http.ResponseWriter, res taxonomy.FetchResult) {
	if bin, ok := binaryFromFetch(res); ok {
		w.Header().Set("Content-Type", bin.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bin.Data)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (rt *Router) writeFetch(w http.ResponseWriter, res taxonomy.FetchResult) {
	if rt.obs != nil {
		for _, entry := range res {
			if entry.Err != nil {
				rt.obs.IncEntityError(entry.Err.Code)
			}
		}
	}
	writeFetchResult(w, res)
}

func (rt *Router) writeSend(w http.ResponseWriter, res taxonomy.SendResult) {
	if rt.obs != nil {
		for _, entry := range res {
			if entry.Err != nil {
				rt.obs.IncEntityError(entry.Err.Code)
			}
		}
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
