package taxonomy

// Service is a logical grouping of channels exposed by one adapter.
type Service struct {
	ID         ServiceID             `json:"id"`
	Adapter    AdapterID             `json:"adapter"`
	Tags       []TagID               `json:"tags"`
	Properties map[string]string     `json:"properties"`
	Channels   map[ChannelID]Channel `json:"channels"`
}

// Channel is an addressable entity supporting fetch and/or send of
// typed values. A channel that supports neither is legal but inert.
type Channel struct {
	ID            ChannelID `json:"id"`
	Service       ServiceID `json:"service"`
	Adapter       AdapterID `json:"adapter"`
	Feature       Feature   `json:"feature"`
	SupportsFetch bool      `json:"supports_fetch"`
	SupportsSend  bool      `json:"supports_send"`
	Tags          []TagID   `json:"tags"`
}

func hasAllTags(have []TagID, want []TagID) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[TagID]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
