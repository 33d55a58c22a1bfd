package taxonomy

import (
	"context"

	"github.com/nathan8299/foxbox/pkg/values"
)

// Adapter is the driver behind one or more services. Fetch and send
// receive only the channel ids the manager already resolved and
// validated; the adapter answers per id, and every requested id must
// appear in the returned map.
type Adapter interface {
	ID() AdapterID
	FetchValues(ctx context.Context, ids []ChannelID, user User) map[ChannelID]FetchEntry
	SendValues(ctx context.Context, vals map[ChannelID]values.Payload, user User) map[ChannelID]SendEntry
}

// TagStore persists tag mutations across restarts. The manager treats
// persistence as best effort; the in-memory state is authoritative for
// the lifetime of the process.
type TagStore interface {
	AddTags(ctx context.Context, kind, entity string, tags []TagID) error
	RemoveTags(ctx context.Context, kind, entity string, tags []TagID) error
	Load(ctx context.Context, kind string) (map[string][]TagID, error)
}

// EventSink receives taxonomy lifecycle events (tag mutations, value
// sends). A nil sink disables publication.
type EventSink interface {
	Emit(kind string, data any)
}

// Tag store entity kinds.
const (
	KindService = "service"
	KindChannel = "channel"
)
