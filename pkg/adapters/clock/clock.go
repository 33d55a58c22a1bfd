// Package clock is the built-in time adapter: one service exposing
// fetch-only channels for the current timestamp and the time of day.
// It doubles as the reference adapter for gateway tests.
package clock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nathan8299/foxbox/pkg/taxonomy"
	"github.com/nathan8299/foxbox/pkg/values"
)

const (
	ID        taxonomy.AdapterID = "clock@foxbox"
	ServiceID taxonomy.ServiceID = "service:clock@foxbox"

	TimestampChannel taxonomy.ChannelID = "getter:timestamp.clock@foxbox"
	TimeOfDayChannel taxonomy.ChannelID = "getter:timeofday.clock@foxbox"

	TimestampFeature taxonomy.Feature = "clock/time-timestamp-rfc-3339"
	TimeOfDayFeature taxonomy.Feature = "clock/time-of-day-seconds"
)

// Clock serves time values. Now is replaceable for tests; nil means
// wall clock.
type Clock struct {
	Now func() time.Time
}

func (c *Clock) ID() taxonomy.AdapterID {
	return ID
}

func (c *Clock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Clock) FetchValues(ctx context.Context, ids []taxonomy.ChannelID, _ taxonomy.User) map[taxonomy.ChannelID]taxonomy.FetchEntry {
	out := make(map[taxonomy.ChannelID]taxonomy.FetchEntry, len(ids))
	for _, id := range ids {
		switch id {
		case TimestampChannel:
			raw, _ := json.Marshal(c.now().Format(time.RFC3339))
			p := values.JSONPayload(raw)
			out[id] = taxonomy.FetchEntry{Payload: &p}
		case TimeOfDayChannel:
			now := c.now()
			midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			raw, _ := json.Marshal(int64(now.Sub(midnight).Seconds()))
			p := values.JSONPayload(raw)
			out[id] = taxonomy.FetchEntry{Payload: &p}
		default:
			out[id] = taxonomy.FetchEntry{Err: taxonomy.NewError(taxonomy.ErrCodeNoSuchChannel, "clock has no channel %s", id)}
		}
	}
	return out
}

func (c *Clock) SendValues(ctx context.Context, vals map[taxonomy.ChannelID]values.Payload, _ taxonomy.User) map[taxonomy.ChannelID]taxonomy.SendEntry {
	out := make(map[taxonomy.ChannelID]taxonomy.SendEntry, len(vals))
	for id := range vals {
		out[id] = taxonomy.SendEntry{Err: taxonomy.NewError(taxonomy.ErrCodeNotSupported, "clock channels are read-only")}
	}
	return out
}

// Register installs the adapter, its service and channels into the
// manager.
func Register(mgr *taxonomy.Manager, c *Clock) error {
	if c == nil {
		c = &Clock{}
	}
	if err := mgr.AddAdapter(c); err != nil {
		return err
	}
	if err := mgr.AddService(taxonomy.Service{
		ID:         ServiceID,
		Adapter:    ID,
		Properties: map[string]string{"model": "foxbox clock v1"},
	}); err != nil {
		return err
	}
	channels := []taxonomy.Channel{
		{ID: TimestampChannel, Service: ServiceID, Feature: TimestampFeature, SupportsFetch: true},
		{ID: TimeOfDayChannel, Service: ServiceID, Feature: TimeOfDayFeature, SupportsFetch: true},
	}
	for _, ch := range channels {
		if err := mgr.AddChannel(ch); err != nil {
			return err
		}
	}
	return nil
}
