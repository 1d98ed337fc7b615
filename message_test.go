package rediswatcher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTripAllTypes(t *testing.T) {
	messages := []*Message{
		NewMessage(Update, "id-1"),
		{
			Method:  UpdateForAddPolicy,
			ID:      "id-2",
			Sec:     "p",
			Ptype:   "p",
			NewRule: []string{"alice", "data1", "read"},
		},
		{
			Method:  UpdateForRemovePolicy,
			ID:      "id-3",
			Sec:     "p",
			Ptype:   "p",
			NewRule: []string{"bob", "data2", "write"},
		},
		{
			Method:      UpdateForRemoveFilteredPolicy,
			ID:          "id-4",
			Sec:         "p",
			Ptype:       "p",
			FieldIndex:  1,
			FieldValues: []string{"data1"},
		},
		NewMessage(UpdateForSavePolicy, "id-5"),
		{
			Method: UpdateForAddPolicies,
			ID:     "id-6",
			Sec:    "p",
			Ptype:  "p",
			NewRules: [][]string{
				{"alice", "data1", "read"},
				{"bob", "data2", "write"},
			},
		},
		{
			Method:   UpdateForRemovePolicies,
			ID:       "id-7",
			Sec:      "p",
			Ptype:    "p",
			NewRules: [][]string{{"alice", "data1", "read"}},
		},
		{
			Method:  UpdateForUpdatePolicy,
			ID:      "id-8",
			Sec:     "p",
			Ptype:   "p",
			OldRule: []string{"alice", "data1", "read"},
			NewRule: []string{"alice", "data1", "write"},
		},
		{
			Method:   UpdateForUpdatePolicies,
			ID:       "id-9",
			Sec:      "p",
			Ptype:    "p",
			OldRules: [][]string{{"alice", "data1", "read"}},
			NewRules: [][]string{{"alice", "data1", "write"}},
		},
	}

	for _, msg := range messages {
		t.Run(msg.Method.String(), func(t *testing.T) {
			data, err := msg.MarshalBinary()
			require.NoError(t, err)

			var decoded Message
			require.NoError(t, decoded.UnmarshalBinary(data))
			assert.Equal(t, *msg, decoded)

			text, err := msg.ToJSON()
			require.NoError(t, err)
			fromText, err := FromJSON(text)
			require.NoError(t, err)
			assert.Equal(t, msg, fromText)
		})
	}
}

func TestMessageWireFormOmitsDefaults(t *testing.T) {
	data, err := NewMessage(Update, "node-1").MarshalBinary()
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, map[string]interface{}{
		"Method": "Update",
		"ID":     "node-1",
	}, fields)
}

func TestMessageWireFieldNames(t *testing.T) {
	msg := &Message{
		Method:      UpdateForRemoveFilteredPolicy,
		ID:          "node-1",
		Sec:         "p",
		Ptype:       "p",
		FieldIndex:  2,
		FieldValues: []string{"data1"},
	}
	text, err := msg.ToJSON()
	require.NoError(t, err)

	for _, key := range []string{`"Method"`, `"ID"`, `"Sec"`, `"Ptype"`, `"FieldIndex"`, `"FieldValues"`} {
		assert.Contains(t, text, key)
	}
}

func TestMessageDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       "Close",
		"empty":          "",
		"wrong shape":    `[1,2,3]`,
		"unknown method": `{"Method":"UpdateForDropTable","ID":"x"}`,
		"missing method": `{"ID":"x"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromJSON(payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSerialization)
		})
	}
}

func TestUpdateTypeValid(t *testing.T) {
	for typ := range validUpdateTypes {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, UpdateType("Reload").Valid())
	assert.False(t, UpdateType("").Valid())
}

func TestMessageStringIsJSON(t *testing.T) {
	msg := NewMessage(UpdateForAddPolicy, "node-1")
	msg.NewRule = []string{"alice", "data1", "read"}

	parsed, err := FromJSON(msg.String())
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}
