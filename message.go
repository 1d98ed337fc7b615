package rediswatcher

import (
	"encoding/json"
	"fmt"
)

// UpdateType tags which kind of policy mutation a Message represents.
// The wire values are shared with the other casbin watcher implementations,
// so instances written in different languages interoperate on one channel.
type UpdateType string

const (
	Update                        UpdateType = "Update"
	UpdateForAddPolicy            UpdateType = "UpdateForAddPolicy"
	UpdateForRemovePolicy         UpdateType = "UpdateForRemovePolicy"
	UpdateForRemoveFilteredPolicy UpdateType = "UpdateForRemoveFilteredPolicy"
	UpdateForSavePolicy           UpdateType = "UpdateForSavePolicy"
	UpdateForAddPolicies          UpdateType = "UpdateForAddPolicies"
	UpdateForRemovePolicies       UpdateType = "UpdateForRemovePolicies"
	UpdateForUpdatePolicy         UpdateType = "UpdateForUpdatePolicy"
	UpdateForUpdatePolicies       UpdateType = "UpdateForUpdatePolicies"
)

var validUpdateTypes = map[UpdateType]struct{}{
	Update:                        {},
	UpdateForAddPolicy:            {},
	UpdateForRemovePolicy:         {},
	UpdateForRemoveFilteredPolicy: {},
	UpdateForSavePolicy:           {},
	UpdateForAddPolicies:          {},
	UpdateForRemovePolicies:       {},
	UpdateForUpdatePolicy:         {},
	UpdateForUpdatePolicies:       {},
}

// Valid reports whether t is one of the nine known update types.
func (t UpdateType) Valid() bool {
	_, ok := validUpdateTypes[t]
	return ok
}

func (t UpdateType) String() string { return string(t) }

// closeSentinel is the reserved payload that tells subscribers a peer is
// shutting down. It is deliberately not valid Message JSON.
const closeSentinel = "Close"

// Message is the change-notification envelope published on the channel.
// ID always carries the publisher's LocalID; only the fields relevant to
// Method are populated, and default-valued fields are omitted on the wire.
type Message struct {
	Method      UpdateType `json:"Method"`
	ID          string     `json:"ID"`
	Sec         string     `json:"Sec,omitempty"`
	Ptype       string     `json:"Ptype,omitempty"`
	OldRule     []string   `json:"OldRule,omitempty"`
	OldRules    [][]string `json:"OldRules,omitempty"`
	NewRule     []string   `json:"NewRule,omitempty"`
	NewRules    [][]string `json:"NewRules,omitempty"`
	FieldIndex  int        `json:"FieldIndex,omitempty"`
	FieldValues []string   `json:"FieldValues,omitempty"`
}

// NewMessage builds a default-valued envelope for the given method and
// publisher id.
func NewMessage(method UpdateType, id string) *Message {
	return &Message{Method: method, ID: id}
}

// MarshalBinary encodes the message into its compact wire form.
// It implements encoding.BinaryMarshaler, which is also what go-redis uses
// to serialize published values.
func (m *Message) MarshalBinary() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal message: %v", ErrSerialization, err)
	}
	return data, nil
}

// UnmarshalBinary decodes the compact wire form produced by MarshalBinary.
// Malformed input and unknown methods fail with ErrSerialization.
func (m *Message) UnmarshalBinary(data []byte) error {
	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: unmarshal message: %v", ErrSerialization, err)
	}
	if !decoded.Method.Valid() {
		return fmt.Errorf("%w: unknown update type %q", ErrSerialization, decoded.Method)
	}
	*m = decoded
	return nil
}

// ToJSON encodes the message into its textual wire form.
func (m *Message) ToJSON() (string, error) {
	data, err := m.MarshalBinary()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON decodes a textual payload into a Message.
func FromJSON(payload string) (*Message, error) {
	var m Message
	if err := m.UnmarshalBinary([]byte(payload)); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Message) String() string {
	s, err := m.ToJSON()
	if err != nil {
		return fmt.Sprintf("Message{Method: %s, ID: %s}", m.Method, m.ID)
	}
	return s
}
