package taxonomy

// Typed identifiers for the entity taxonomy. Keeping them as distinct
// string types stops a channel id from silently standing in for a
// service id in a selector or result map.
type (
	ServiceID string
	ChannelID string
	AdapterID string
	TagID     string
	Feature   string
)

// User identifies the caller an operation runs on behalf of. The zero
// value is the anonymous user, which is allowed to dispatch; per-channel
// authorization is the adapter's concern.
type User struct {
	ID string
}

var Anonymous = User{}

func (u User) IsAnonymous() bool {
	return u.ID == ""
}
