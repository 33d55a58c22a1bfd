// Package taxonomy models a heterogeneous taxonomy of services and
// channels, queryable through composable selectors, and dispatches
// fetch/send operations to the adapters driving them.
package taxonomy

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/nathan8299/foxbox/pkg/values"
)

// Event kinds published to the configured EventSink.
const (
	EventServiceTagsAdded   = "service_tags_added"
	EventServiceTagsRemoved = "service_tags_removed"
	EventChannelTagsAdded   = "channel_tags_added"
	EventChannelTagsRemoved = "channel_tags_removed"
	EventValuesSent         = "values_sent"
)

// Manager is the shared, internally-synchronized taxonomy registry.
// All per-request state lives with the caller; the manager only guards
// the entity tables, so it is safe to share one handle across
// concurrent requests.
type Manager struct {
	mu       sync.RWMutex
	adapters map[AdapterID]Adapter
	services map[ServiceID]*Service
	channels map[ChannelID]*Channel

	tags   TagStore
	events EventSink
}

type Option func(*Manager)

func WithTagStore(ts TagStore) Option {
	return func(m *Manager) { m.tags = ts }
}

func WithEvents(sink EventSink) Option {
	return func(m *Manager) { m.events = sink }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		adapters: map[AdapterID]Adapter{},
		services: map[ServiceID]*Service{},
		channels: map[ChannelID]*Channel{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) AddAdapter(a Adapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adapters[a.ID()]; ok {
		return fmt.Errorf("adapter %s already registered", a.ID())
	}
	m.adapters[a.ID()] = a
	return nil
}

func (m *Manager) AddService(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adapters[svc.Adapter]; !ok {
		return fmt.Errorf("service %s: adapter %s not registered", svc.ID, svc.Adapter)
	}
	if _, ok := m.services[svc.ID]; ok {
		return fmt.Errorf("service %s already registered", svc.ID)
	}
	stored := svc
	stored.Tags = append([]TagID(nil), svc.Tags...)
	stored.Channels = nil
	if stored.Properties == nil {
		stored.Properties = map[string]string{}
	}
	m.services[svc.ID] = &stored
	return nil
}

func (m *Manager) AddChannel(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[ch.Service]
	if !ok {
		return fmt.Errorf("channel %s: service %s not registered", ch.ID, ch.Service)
	}
	if _, ok := m.channels[ch.ID]; ok {
		return fmt.Errorf("channel %s already registered", ch.ID)
	}
	stored := ch
	if stored.Adapter == "" {
		stored.Adapter = svc.Adapter
	}
	stored.Tags = append([]TagID(nil), ch.Tags...)
	m.channels[ch.ID] = &stored
	return nil
}

func (m *Manager) RemoveChannel(id ChannelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[id]; !ok {
		return fmt.Errorf("channel %s not registered", id)
	}
	delete(m.channels, id)
	return nil
}

func (m *Manager) RemoveService(id ServiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return fmt.Errorf("service %s not registered", id)
	}
	delete(m.services, id)
	for chID, ch := range m.channels {
		if ch.Service == id {
			delete(m.channels, chID)
		}
	}
	return nil
}

// RestoreTags merges persisted tags into the already-registered
// entities. Call it once after registration, before serving requests.
func (m *Manager) RestoreTags(ctx context.Context) error {
	if m.tags == nil {
		return nil
	}
	svcTags, err := m.tags.Load(ctx, KindService)
	if err != nil {
		return fmt.Errorf("load service tags: %w", err)
	}
	chTags, err := m.tags.Load(ctx, KindChannel)
	if err != nil {
		return fmt.Errorf("load channel tags: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, tags := range svcTags {
		if svc, ok := m.services[ServiceID(id)]; ok {
			svc.Tags = mergeTags(svc.Tags, tags)
		}
	}
	for id, tags := range chTags {
		if ch, ok := m.channels[ChannelID(id)]; ok {
			ch.Tags = mergeTags(ch.Tags, tags)
		}
	}
	return nil
}

func mergeTags(have, extra []TagID) []TagID {
	for _, t := range extra {
		if !hasAllTags(have, []TagID{t}) {
			have = append(have, t)
		}
	}
	return have
}

// GetServices returns the union of services matched by the selectors,
// sorted by id, with their channels embedded. An empty selector list
// matches everything.
func (m *Manager) GetServices(sels []ServiceSelector) []Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Service, 0, len(m.services))
	for _, svc := range m.services {
		if matchesAnyService(sels, svc) {
			out = append(out, m.snapshotServiceLocked(svc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetChannels returns the union of channels matched by the selectors,
// sorted by id. An empty selector list matches everything.
func (m *Manager) GetChannels(sels []ChannelSelector) []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		if matchesAnyChannel(sels, ch) {
			out = append(out, snapshotChannel(ch))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matchesAnyService(sels []ServiceSelector, svc *Service) bool {
	if len(sels) == 0 {
		return true
	}
	for _, sel := range sels {
		if sel.Matches(svc) {
			return true
		}
	}
	return false
}

func matchesAnyChannel(sels []ChannelSelector, ch *Channel) bool {
	if len(sels) == 0 {
		return true
	}
	for _, sel := range sels {
		if sel.Matches(ch) {
			return true
		}
	}
	return false
}

func (m *Manager) snapshotServiceLocked(svc *Service) Service {
	out := *svc
	out.Tags = append([]TagID(nil), svc.Tags...)
	out.Properties = make(map[string]string, len(svc.Properties))
	for k, v := range svc.Properties {
		out.Properties[k] = v
	}
	out.Channels = map[ChannelID]Channel{}
	for id, ch := range m.channels {
		if ch.Service == svc.ID {
			out.Channels[id] = snapshotChannel(ch)
		}
	}
	return out
}

func snapshotChannel(ch *Channel) Channel {
	out := *ch
	out.Tags = append([]TagID(nil), ch.Tags...)
	return out
}

// AddServiceTags tags every matched service and reports, per service,
// how many of the tags were newly added. Repeating a call yields zero
// counts.
func (m *Manager) AddServiceTags(ctx context.Context, sels []ServiceSelector, tags []TagID) map[ServiceID]int {
	out := map[ServiceID]int{}
	m.mu.Lock()
	for _, svc := range m.services {
		if !matchesAnyService(sels, svc) {
			continue
		}
		added := 0
		for _, t := range tags {
			if !hasAllTags(svc.Tags, []TagID{t}) {
				svc.Tags = append(svc.Tags, t)
				added++
			}
		}
		out[svc.ID] = added
	}
	m.mu.Unlock()
	if len(out) > 0 {
		keys := serviceKeys(out)
		for _, id := range keys {
			m.persistAdd(ctx, KindService, id, tags)
		}
		m.emit(EventServiceTagsAdded, tagEvent{Entities: keys, Tags: tags})
	}
	return out
}

// RemoveServiceTags removes tags from every matched service and
// reports, per service, how many were actually present.
func (m *Manager) RemoveServiceTags(ctx context.Context, sels []ServiceSelector, tags []TagID) map[ServiceID]int {
	out := map[ServiceID]int{}
	m.mu.Lock()
	for _, svc := range m.services {
		if !matchesAnyService(sels, svc) {
			continue
		}
		var removed int
		svc.Tags, removed = removeTags(svc.Tags, tags)
		out[svc.ID] = removed
	}
	m.mu.Unlock()
	if len(out) > 0 {
		keys := serviceKeys(out)
		for _, id := range keys {
			m.persistRemove(ctx, KindService, id, tags)
		}
		m.emit(EventServiceTagsRemoved, tagEvent{Entities: keys, Tags: tags})
	}
	return out
}

// AddChannelTags mirrors AddServiceTags for channels.
func (m *Manager) AddChannelTags(ctx context.Context, sels []ChannelSelector, tags []TagID) map[ChannelID]int {
	out := map[ChannelID]int{}
	m.mu.Lock()
	for _, ch := range m.channels {
		if !matchesAnyChannel(sels, ch) {
			continue
		}
		added := 0
		for _, t := range tags {
			if !hasAllTags(ch.Tags, []TagID{t}) {
				ch.Tags = append(ch.Tags, t)
				added++
			}
		}
		out[ch.ID] = added
	}
	m.mu.Unlock()
	if len(out) > 0 {
		keys := channelKeys(out)
		for _, id := range keys {
			m.persistAdd(ctx, KindChannel, id, tags)
		}
		m.emit(EventChannelTagsAdded, tagEvent{Entities: keys, Tags: tags})
	}
	return out
}

// RemoveChannelTags mirrors RemoveServiceTags for channels.
func (m *Manager) RemoveChannelTags(ctx context.Context, sels []ChannelSelector, tags []TagID) map[ChannelID]int {
	out := map[ChannelID]int{}
	m.mu.Lock()
	for _, ch := range m.channels {
		if !matchesAnyChannel(sels, ch) {
			continue
		}
		var removed int
		ch.Tags, removed = removeTags(ch.Tags, tags)
		out[ch.ID] = removed
	}
	m.mu.Unlock()
	if len(out) > 0 {
		keys := channelKeys(out)
		for _, id := range keys {
			m.persistRemove(ctx, KindChannel, id, tags)
		}
		m.emit(EventChannelTagsRemoved, tagEvent{Entities: keys, Tags: tags})
	}
	return out
}

func removeTags(have, drop []TagID) ([]TagID, int) {
	removed := 0
	out := have[:0]
	dropSet := make(map[TagID]struct{}, len(drop))
	for _, t := range drop {
		dropSet[t] = struct{}{}
	}
	for _, t := range have {
		if _, ok := dropSet[t]; ok {
			removed++
			continue
		}
		out = append(out, t)
	}
	return out, removed
}

// FetchValues resolves the selectors to channels and asks each owning
// adapter for current values. Per-channel failures stay in the result
// map; the call itself never fails.
func (m *Manager) FetchValues(ctx context.Context, sels []ChannelSelector, user User) FetchResult {
	result := FetchResult{}
	byAdapter := map[AdapterID][]ChannelID{}

	m.mu.RLock()
	adapters := make(map[AdapterID]Adapter, len(m.adapters))
	for id, a := range m.adapters {
		adapters[id] = a
	}
	for _, ch := range m.channels {
		if !matchesAnyChannel(sels, ch) {
			continue
		}
		if !ch.SupportsFetch {
			result[ch.ID] = FetchEntry{Err: errNotSupported("fetch", ch.ID)}
			continue
		}
		byAdapter[ch.Adapter] = append(byAdapter[ch.Adapter], ch.ID)
	}
	m.mu.RUnlock()

	for adapterID, ids := range byAdapter {
		a, ok := adapters[adapterID]
		if !ok {
			for _, id := range ids {
				result[id] = FetchEntry{Err: NewError(ErrCodeNoSuchAdapter, "adapter %s not registered", adapterID)}
			}
			continue
		}
		out := a.FetchValues(ctx, ids, user)
		for _, id := range ids {
			entry, ok := out[id]
			if !ok {
				entry = FetchEntry{Err: NewError(ErrCodeAdapterFailure, "adapter %s returned no result for %s", adapterID, id)}
			}
			result[id] = entry
		}
	}
	return result
}

// SendValues resolves each target's selectors and delivers its payload
// to every matched channel. When several targets hit the same channel,
// the last one wins.
func (m *Manager) SendValues(ctx context.Context, targets []Target, user User) SendResult {
	result := SendResult{}
	resolved := map[ChannelID]values.Payload{}

	m.mu.RLock()
	adapters := make(map[AdapterID]Adapter, len(m.adapters))
	for id, a := range m.adapters {
		adapters[id] = a
	}
	channelAdapters := map[ChannelID]AdapterID{}
	for _, target := range targets {
		for _, ch := range m.channels {
			if !matchesAnyChannel(target.Select, ch) {
				continue
			}
			if !ch.SupportsSend {
				result[ch.ID] = SendEntry{Err: errNotSupported("send", ch.ID)}
				continue
			}
			resolved[ch.ID] = target.Payload
			channelAdapters[ch.ID] = ch.Adapter
		}
	}
	m.mu.RUnlock()

	byAdapter := map[AdapterID]map[ChannelID]values.Payload{}
	for id, payload := range resolved {
		adapterID := channelAdapters[id]
		group := byAdapter[adapterID]
		if group == nil {
			group = map[ChannelID]values.Payload{}
			byAdapter[adapterID] = group
		}
		group[id] = payload
	}

	var sent []ChannelID
	for adapterID, vals := range byAdapter {
		a, ok := adapters[adapterID]
		if !ok {
			for id := range vals {
				result[id] = SendEntry{Err: NewError(ErrCodeNoSuchAdapter, "adapter %s not registered", adapterID)}
			}
			continue
		}
		out := a.SendValues(ctx, vals, user)
		for id := range vals {
			entry, ok := out[id]
			if !ok {
				entry = SendEntry{Err: NewError(ErrCodeAdapterFailure, "adapter %s returned no result for %s", adapterID, id)}
			}
			result[id] = entry
			if entry.Err == nil {
				sent = append(sent, id)
			}
		}
	}
	if len(sent) > 0 {
		m.emit(EventValuesSent, valuesEvent{Channels: sent})
	}
	return result
}

type tagEvent struct {
	Entities []string `json:"entities"`
	Tags     []TagID  `json:"tags"`
}

type valuesEvent struct {
	Channels []ChannelID `json:"channels"`
}

func serviceKeys(m map[ServiceID]int) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}

func channelKeys(m map[ChannelID]int) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}

func (m *Manager) emit(kind string, data any) {
	if m.events == nil {
		return
	}
	m.events.Emit(kind, data)
}

// persistAdd and persistRemove are called after the registry lock is
// released; a slow store must not stall concurrent reads.
func (m *Manager) persistAdd(ctx context.Context, kind, entity string, tags []TagID) {
	if m.tags == nil {
		return
	}
	if err := m.tags.AddTags(ctx, kind, entity, tags); err != nil {
		log.Printf("taxonomy: persist tags for %s %s: %v", kind, entity, err)
	}
}

func (m *Manager) persistRemove(ctx context.Context, kind, entity string, tags []TagID) {
	if m.tags == nil {
		return
	}
	if err := m.tags.RemoveTags(ctx, kind, entity, tags); err != nil {
		log.Printf("taxonomy: unpersist tags for %s %s: %v", kind, entity, err)
	}
}
