package taxonomy

import (
	"encoding/json"
	"fmt"

	"github.com/nathan8299/foxbox/pkg/values"
)

// Error is a per-entity operation failure reported by the manager or an
// adapter. It rides inside the 200 result map and is never promoted to
// a transport-level failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

const (
	ErrCodeNoSuchChannel  = "NO_SUCH_CHANNEL"
	ErrCodeNoSuchService  = "NO_SUCH_SERVICE"
	ErrCodeNoSuchAdapter  = "NO_SUCH_ADAPTER"
	ErrCodeNotSupported   = "OPERATION_NOT_SUPPORTED"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeAdapterFailure = "ADAPTER_FAILURE"
)

func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func errNotSupported(op string, id ChannelID) *Error {
	return NewError(ErrCodeNotSupported, "channel %s does not support %s", id, op)
}

// FetchEntry is one fetch result: a payload on success (nil when the
// channel had no value), an error otherwise.
type FetchEntry struct {
	Payload *values.Payload
	Err     *Error
}

func (e FetchEntry) MarshalJSON() ([]byte, error) {
	if e.Err != nil {
		return json.Marshal(map[string]*Error{"error": e.Err})
	}
	if e.Payload == nil {
		return []byte("null"), nil
	}
	return json.Marshal(e.Payload)
}

// FetchResult maps each targeted channel to its value or error.
type FetchResult map[ChannelID]FetchEntry

// SendEntry is one send result: nil error on success.
type SendEntry struct {
	Err *Error
}

func (e SendEntry) MarshalJSON() ([]byte, error) {
	if e.Err != nil {
		return json.Marshal(map[string]*Error{"error": e.Err})
	}
	return []byte("null"), nil
}

// SendResult maps each targeted channel to its outcome.
type SendResult map[ChannelID]SendEntry

// Target pairs a payload with the selectors choosing the channels it
// should be sent to. The select field accepts a single selector or a
// list.
type Target struct {
	Select  []ChannelSelector `json:"select"`
	Payload values.Payload    `json:"payload"`
}

func (t *Target) UnmarshalJSON(data []byte) error {
	var raw struct {
		Select  json.RawMessage `json:"select"`
		Payload values.Payload  `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	sels, err := DecodeChannelSelectors(raw.Select)
	if err != nil {
		return err
	}
	t.Select = sels
	t.Payload = raw.Payload
	return nil
}

// DecodeChannelSelectors accepts either a selector list or a lone
// selector object.
func DecodeChannelSelectors(data []byte) ([]ChannelSelector, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("select is required")
	}
	var list []ChannelSelector
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var one ChannelSelector
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []ChannelSelector{one}, nil
}

// DecodeServiceSelectors accepts either a selector list or a lone
// selector object.
func DecodeServiceSelectors(data []byte) ([]ServiceSelector, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("selector is required")
	}
	var list []ServiceSelector
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var one ServiceSelector
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []ServiceSelector{one}, nil
}
