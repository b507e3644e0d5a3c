package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRowFilter(t *testing.T) {
	col, val, err := ParseRowFilter("conversation_id=eq.k1")
	require.NoError(t, err)
	assert.Equal(t, "conversation_id", col)
	assert.Equal(t, "k1", val)

	for _, bad := range []string{"", "conversation_id", "=eq.k1", "conversation_id=k1", "conversation_id=eq."} {
		_, _, err := ParseRowFilter(bad)
		assert.ErrorIs(t, err, ErrInvalidFilter, bad)
	}
}

func TestFilter_Match(t *testing.T) {
	insert := Change{
		Table:  "messages",
		Type:   EventInsert,
		Record: map[string]any{"id": "m1", "conversation_id": "k1"},
	}

	tests := []struct {
		name     string
		filter   Filter
		change   Change
		expected bool
	}{
		{"table only", Filter{Table: "messages"}, insert, true},
		{"other table", Filter{Table: "conversations"}, insert, false},
		{"event listed", Filter{Table: "messages", Events: []EventType{EventInsert}}, insert, true},
		{"event not listed", Filter{Table: "messages", Events: []EventType{EventUpdate}}, insert, false},
		{"wildcard event", Filter{Table: "messages", Events: []EventType{EventAll}}, insert, true},
		{"row filter hit", Filter{Table: "messages", Column: "conversation_id", Value: "k1"}, insert, true},
		{"row filter miss", Filter{Table: "messages", Column: "conversation_id", Value: "k2"}, insert, false},
		{"row filter missing column", Filter{Table: "messages", Column: "sender_id", Value: "u1"}, insert, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.filter.Match(tt.change))
		})
	}
}
