// Package router is the HTTP surface of the taxonomy API. It resolves
// requests through an ordered, data-driven route table into generic
// manager operations, negotiating structured (JSON) versus opaque
// binary payloads per request.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nathan8299/foxbox/pkg/httpx"
	"github.com/nathan8299/foxbox/pkg/taxonomy"
	"github.com/nathan8299/foxbox/pkg/values"
)

// Verifier validates bearer session tokens. A nil Verifier rejects
// every presented token; requests without a token always pass through
// as anonymous.
type Verifier interface {
	Verify(ctx context.Context, token string) (subject string, err error)
}

// Observer counts dispatched operations and the per-entity errors
// embedded in their result maps. A nil observer disables counting.
type Observer interface {
	IncOperation(op string)
	IncEntityError(code string)
}

// Router dispatches taxonomy API requests. It holds no mutable state;
// the route table is fixed at construction and the manager handle is
// internally synchronized, so one Router serves concurrent requests.
type Router struct {
	mgr    *taxonomy.Manager
	verify Verifier
	obs    Observer
	routes []route
}

type Option func(*Router)

func WithObserver(obs Observer) Option {
	return func(rt *Router) { rt.obs = obs }
}

// route is one dispatch rule: method plus a segment pattern, where a
// ":name" segment captures an arbitrary identifier. Rules are evaluated
// in declaration order and the first structural match wins.
type route struct {
	method  string
	name    string
	pattern []string
	handle  func(w http.ResponseWriter, r *http.Request, params map[string]string, user taxonomy.User)
}

func New(mgr *taxonomy.Manager, verify Verifier, opts ...Option) *Router {
	rt := &Router{mgr: mgr, verify: verify}
	for _, opt := range opts {
		opt(rt)
	}
	rt.routes = []route{
		{http.MethodGet, "get_channel", segments("channel/:id"), rt.getChannelValue},
		{http.MethodPut, "set_channel", segments("channel/:id"), rt.putChannelValue},
		{http.MethodGet, "list_services", segments("services"), rt.listServices},
		{http.MethodPost, "query_services", segments("services"), rt.queryServices},
		{http.MethodGet, "list_channels", segments("channels"), rt.listChannels},
		{http.MethodPost, "query_channels", segments("channels"), rt.queryChannels},
		{http.MethodPut, "bulk_fetch", segments("channels/get"), rt.bulkFetch},
		{http.MethodPut, "bulk_send", segments("channels/set"), rt.bulkSend},
		{http.MethodPost, "add_service_tags", segments("services/tags"), rt.addServiceTags},
		{http.MethodDelete, "remove_service_tags", segments("services/tags"), rt.removeServiceTags},
		{http.MethodPost, "add_channel_tags", segments("channels/tags"), rt.addChannelTags},
		{http.MethodDelete, "remove_channel_tags", segments("channels/tags"), rt.removeChannelTags},
	}
	return rt
}

func segments(pattern string) []string {
	return strings.Split(pattern, "/")
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := rt.identify(w, r)
	if !ok {
		return
	}
	path := splitPath(r.URL.Path)
	for _, rule := range rt.routes {
		params, ok := match(rule.pattern, path)
		if !ok || rule.method != r.Method {
			continue
		}
		if rt.obs != nil {
			rt.obs.IncOperation(rule.name)
		}
		rule.handle(w, r, params, user)
		return
	}
	// The collection paths answer 405 for methods outside their
	// rules; everything else falls through to 404.
	if len(path) == 1 && (path[0] == "services" || path[0] == "channels") {
		http.Error(w, fmt.Sprintf("Bad method: %s", r.Method), http.StatusMethodNotAllowed)
		return
	}
	http.Error(w, fmt.Sprintf("Unknown url: %s", requestURL(r)), http.StatusNotFound)
}

// identify derives the caller identity once per request. An invalid
// bearer token terminates processing with 401 before any body is read;
// a missing or non-bearer Authorization header yields the anonymous
// user.
func (rt *Router) identify(w http.ResponseWriter, r *http.Request) (taxonomy.User, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return taxonomy.Anonymous, true
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	if rt.verify == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return taxonomy.User{}, false
	}
	subject, err := rt.verify.Verify(r.Context(), token)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return taxonomy.User{}, false
	}
	return taxonomy.User{ID: subject}, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func match(pattern, path []string) (map[string]string, bool) {
	if len(pattern) != len(path) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if path[i] == "" {
				return nil, false
			}
			if params == nil {
				params = map[string]string{}
			}
			params[seg[1:]] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, false
		}
	}
	return params, true
}

// requestURL names the literal URL the client asked for, even when the
// router is mounted behind a prefix strip.
func requestURL(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.Path
}

func (rt *Router) getChannelValue(w http.ResponseWriter, r *http.Request, params map[string]string, user taxonomy.User) {
	sel := taxonomy.ChannelSelector{}.WithID(taxonomy.ChannelID(params["id"]))
	res := rt.mgr.FetchValues(r.Context(), []taxonomy.ChannelSelector{sel}, user)
	rt.writeFetch(w, res)
}

func (rt *Router) putChannelValue(w http.ResponseWriter, r *http.Request, params map[string]string, user taxonomy.User) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	payload, err := values.Decode(body, r.Header.Get("Content-Type"))
	if err != nil {
		writeParseError(w, "body", err)
		return
	}
	sel := taxonomy.ChannelSelector{}.WithID(taxonomy.ChannelID(params["id"]))
	res := rt.mgr.SendValues(r.Context(), []taxonomy.Target{{Select: []taxonomy.ChannelSelector{sel}, Payload: payload}}, user)
	rt.writeSend(w, res)
}

func (rt *Router) listServices(w http.ResponseWriter, r *http.Request, _ map[string]string, _ taxonomy.User) {
	httpx.WriteJSON(w, http.StatusOK, rt.mgr.GetServices([]taxonomy.ServiceSelector{{}}))
}

func (rt *Router) queryServices(w http.ResponseWriter, r *http.Request, _ map[string]string, _ taxonomy.User) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	sels, err := taxonomy.DecodeServiceSelectors(body)
	if err != nil {
		writeParseError(w, "body", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rt.mgr.GetServices(sels))
}

func (rt *Router) listChannels(w http.ResponseWriter, r *http.Request, _ map[string]string, _ taxonomy.User) {
	httpx.WriteJSON(w, http.StatusOK, rt.mgr.GetChannels([]taxonomy.ChannelSelector{{}}))
}

func (rt *Router) queryChannels(w http.ResponseWriter, r *http.Request, _ map[string]string, _ taxonomy.User) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	sels, err := taxonomy.DecodeChannelSelectors(body)
	if err != nil {
		writeParseError(w, "body", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rt.mgr.GetChannels(sels))
}

// bulkFetch reads selectors from a PUT body; fetch-with-body rides on
// PUT because the browser fetch API refuses bodies on GET and HEAD.
func (rt *Router) bulkFetch(w http.ResponseWriter, r *http.Request, _ map[string]string, user taxonomy.User) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	sels, err := taxonomy.DecodeChannelSelectors(body)
	if err != nil {
		writeParseError(w, "body", err)
		return
	}
	rt.writeFetch(w, rt.mgr.FetchValues(r.Context(), sels, user))
}

func (rt *Router) bulkSend(w http.ResponseWriter, r *http.Request, _ map[string]string, user taxonomy.User) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var targets []taxonomy.Target
	if err := json.Unmarshal(body, &targets); err != nil {
		var one taxonomy.Target
		if err2 := json.Unmarshal(body, &one); err2 != nil {
			writeParseError(w, "body", err)
			return
		}
		targets = []taxonomy.Target{one}
	}
	rt.writeSend(w, rt.mgr.SendValues(r.Context(), targets, user))
}

func (rt *Router) addServiceTags(w http.ResponseWriter, r *http.Request, _ map[string]string, _ taxonomy.User) {
	sels, tags, ok := rt.serviceTagArgs(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rt.mgr.AddServiceTags(r.Context(), sels, tags))
}

func (rt *Router) removeServiceTags(w http.ResponseWriter, r *http.Request, _ map[string]string, _ taxonomy.User) {
	sels, tags, ok := rt.serviceTagArgs(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rt.mgr.RemoveServiceTags(r.Context(), sels, tags))
}

func (rt *Router) addChannelTags(w http.ResponseWriter, r *http.Request, _ map[string]string, _ taxonomy.User) {
	sels, tags, ok := rt.channelTagArgs(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rt.mgr.AddChannelTags(r.Context(), sels, tags))
}

func (rt *Router) removeChannelTags(w http.ResponseWriter, r *http.Request, _ map[string]string, _ taxonomy.User) {
	sels, tags, ok := rt.channelTagArgs(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rt.mgr.RemoveChannelTags(r.Context(), sels, tags))
}

// serviceTagArgs decodes the two named fields of a tag-mutation body:
// a selector list and a tag list, both required.
func (rt *Router) serviceTagArgs(w http.ResponseWriter, r *http.Request) ([]taxonomy.ServiceSelector, []taxonomy.TagID, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, nil, false
	}
	var raw struct {
		Services json.RawMessage  `json:"services"`
		Tags     []taxonomy.TagID `json:"tags"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		writeParseError(w, "body", err)
		return nil, nil, false
	}
	if len(raw.Services) == 0 {
		writeParseError(w, "body.services", errors.New("field required"))
		return nil, nil, false
	}
	sels, err := taxonomy.DecodeServiceSelectors(raw.Services)
	if err != nil {
		writeParseError(w, "body.services", err)
		return nil, nil, false
	}
	if raw.Tags == nil {
		writeParseError(w, "body.tags", errors.New("field required"))
		return nil, nil, false
	}
	return sels, raw.Tags, true
}

func (rt *Router) channelTagArgs(w http.ResponseWriter, r *http.Request) ([]taxonomy.ChannelSelector, []taxonomy.TagID, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, nil, false
	}
	var raw struct {
		Channels json.RawMessage  `json:"channels"`
		Tags     []taxonomy.TagID `json:"tags"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		writeParseError(w, "body", err)
		return nil, nil, false
	}
	if len(raw.Channels) == 0 {
		writeParseError(w, "body.channels", errors.New("field required"))
		return nil, nil, false
	}
	sels, err := taxonomy.DecodeChannelSelectors(raw.Channels)
	if err != nil {
		writeParseError(w, "body.channels", err)
		return nil, nil, false
	}
	if raw.Tags == nil {
		writeParseError(w, "body.tags", errors.New("field required"))
		return nil, nil, false
	}
	return sels, raw.Tags, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	httpx.Error(w, http.StatusBadRequest, "invalid request body")
	return nil, false
}
