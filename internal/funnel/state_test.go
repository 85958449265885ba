// AngelaMos | 2026
// state_test.go

package funnel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelamos/tenfold/internal/core"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    State
		wantErr bool
	}{
		{name: "visitor", raw: "VISITOR", want: StateVisitor},
		{name: "auth", raw: "AUTH", want: StateAuth},
		{name: "payment", raw: "PAYMENT", want: StatePayment},
		{name: "drive", raw: "DRIVE", want: StateDrive},
		{name: "active", raw: "ACTIVE", want: StateActive},
		{name: "lowercase rejected", raw: "visitor", wantErr: true},
		{name: "unknown rejected", raw: "CHECKOUT", wantErr: true},
		{name: "empty rejected", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseState(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, core.ErrInvalidState))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct {
		from State
		to   State
	}{
		{StateVisitor, StateAuth},
		{StateAuth, StatePayment},
		{StatePayment, StateDrive},
		{StatePayment, StateAuth},
		{StateDrive, StateActive},
		{StateDrive, StatePayment},
		{StateActive, StatePayment},
	}

	for _, tt := range allowed {
		assert.True(t, tt.from.CanTransitionTo(tt.to),
			"%s -> %s should be allowed", tt.from, tt.to)
	}

	forbidden := []struct {
		from State
		to   State
	}{
		{StateVisitor, StatePayment},
		{StateVisitor, StateActive},
		{StateAuth, StateVisitor},
		{StateAuth, StateDrive},
		{StatePayment, StateActive},
		{StateDrive, StateVisitor},
		{StateActive, StateDrive},
		{StateActive, StateVisitor},
	}

	for _, tt := range forbidden {
		assert.False(t, tt.from.CanTransitionTo(tt.to),
			"%s -> %s should be forbidden", tt.from, tt.to)
	}
}

func TestAllowedTransitionsIsACopy(t *testing.T) {
	first := AllowedTransitions(StatePayment)
	require.Len(t, first, 2)

	first[0] = StateVisitor

	second := AllowedTransitions(StatePayment)
	assert.Equal(t, StateDrive, second[0])
}

func TestRequiredFields(t *testing.T) {
	assert.Empty(t, RequiredFields(StateVisitor))
	assert.ElementsMatch(t, []string{"email", "auth_id"}, RequiredFields(StateAuth))
	assert.ElementsMatch(t,
		[]string{"plan_id", "session_id", "status"},
		RequiredFields(StatePayment),
	)
	assert.ElementsMatch(t, []string{"auth_status"}, RequiredFields(StateDrive))
	assert.ElementsMatch(t, []string{"folder_id"}, RequiredFields(StateActive))
}
