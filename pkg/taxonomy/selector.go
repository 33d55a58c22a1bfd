package taxonomy

import "encoding/json"

// ServiceSelector filters services by id and tags. Independent id pins
// fold through Exactly.And, so two selectors disagreeing on the id
// resolve to a conflict that matches nothing instead of silently
// preferring one of them.
type ServiceSelector struct {
	ID   Exactly[ServiceID]
	Tags []TagID
}

func (s ServiceSelector) WithID(id ServiceID) ServiceSelector {
	s.ID = s.ID.And(ExactlyValue(id))
	return s
}

func (s ServiceSelector) WithTags(tags ...TagID) ServiceSelector {
	s.Tags = append(s.Tags, tags...)
	return s
}

func (s ServiceSelector) Matches(svc *Service) bool {
	if !s.ID.Matches(svc.ID) {
		return false
	}
	return hasAllTags(svc.Tags, s.Tags)
}

func (s *ServiceSelector) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   *ServiceID `json:"id"`
		Tags []TagID    `json:"tags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID != nil {
		s.ID = s.ID.And(ExactlyValue(*raw.ID))
	}
	s.Tags = append(s.Tags, raw.Tags...)
	return nil
}

// ChannelSelector filters channels by id, owning service, feature and
// tags.
type ChannelSelector struct {
	ID      Exactly[ChannelID]
	Service Exactly[ServiceID]
	Feature Exactly[Feature]
	Tags    []TagID
}

func (s ChannelSelector) WithID(id ChannelID) ChannelSelector {
	s.ID = s.ID.And(ExactlyValue(id))
	return s
}

func (s ChannelSelector) WithService(id ServiceID) ChannelSelector {
	s.Service = s.Service.And(ExactlyValue(id))
	return s
}

func (s ChannelSelector) WithFeature(f Feature) ChannelSelector {
	s.Feature = s.Feature.And(ExactlyValue(f))
	return s
}

func (s ChannelSelector) WithTags(tags ...TagID) ChannelSelector {
	s.Tags = append(s.Tags, tags...)
	return s
}

func (s ChannelSelector) Matches(ch *Channel) bool {
	if !s.ID.Matches(ch.ID) {
		return false
	}
	if !s.Service.Matches(ch.Service) {
		return false
	}
	if !s.Feature.Matches(ch.Feature) {
		return false
	}
	return hasAllTags(ch.Tags, s.Tags)
}

func (s *ChannelSelector) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      *ChannelID `json:"id"`
		Service *ServiceID `json:"service"`
		Feature *Feature   `json:"feature"`
		Tags    []TagID    `json:"tags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID != nil {
		s.ID = s.ID.And(ExactlyValue(*raw.ID))
	}
	if raw.Service != nil {
		s.Service = s.Service.And(ExactlyValue(*raw.Service))
	}
	if raw.Feature != nil {
		s.Feature = s.Feature.And(ExactlyValue(*raw.Feature))
	}
	s.Tags = append(s.Tags, raw.Tags...)
	return nil
}
