// AngelaMos | 2026
// metadata_test.go

package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeKeepsOmittedNamespaces(t *testing.T) {
	base := Metadata{
		"user": map[string]any{
			"email":   "a@example.com",
			"auth_id": "google-1",
		},
		"payment": map[string]any{
			"plan_id": "pro",
		},
	}

	merged := base.Merge(Metadata{
		"drive": map[string]any{
			"auth_status": "pending",
		},
	})

	assert.Equal(t, "a@example.com", merged.Namespace("user")["email"])
	assert.Equal(t, "pro", merged.Namespace("payment")["plan_id"])
	assert.Equal(t, "pending", merged.Namespace("drive")["auth_status"])
}

func TestMergePatchWinsFieldwise(t *testing.T) {
	base := Metadata{
		"payment": map[string]any{
			"plan_id":    "starter",
			"session_id": "sess-1",
			"status":     "pending",
		},
	}

	merged := base.Merge(Metadata{
		"payment": map[string]any{
			"status": "completed",
		},
	})

	payment := merged.Namespace("payment")
	assert.Equal(t, "completed", payment["status"])
	assert.Equal(t, "starter", payment["plan_id"])
	assert.Equal(t, "sess-1", payment["session_id"])
}

func TestMergeDoesNotMutateReceiver(t *testing.T) {
	base := Metadata{
		"user": map[string]any{"email": "a@example.com"},
	}

	_ = base.Merge(Metadata{
		"user": map[string]any{"email": "b@example.com"},
	})

	assert.Equal(t, "a@example.com", base.Namespace("user")["email"])
}

func TestMergeScalarReplacement(t *testing.T) {
	base := Metadata{"allowed_transitions": []string{"AUTH"}}

	merged := base.Merge(Metadata{"allowed_transitions": []string{"PAYMENT"}})

	assert.Equal(t, []string{"PAYMENT"}, merged["allowed_transitions"])
}

func TestStampAllowedTransitions(t *testing.T) {
	m := Metadata{}
	m.StampAllowedTransitions(StateDrive)

	assert.ElementsMatch(t,
		[]string{"ACTIVE", "PAYMENT"},
		m[KeyAllowedTransitions],
	)
}

func TestDriveAccessors(t *testing.T) {
	m := Metadata{
		"drive": map[string]any{
			"auth_status": "connected",
			"tokens": map[string]any{
				"access_token":  "at-1",
				"refresh_token": "rt-1",
			},
		},
	}

	assert.Equal(t, "connected", m.DriveAuthStatus())

	access, refresh := m.DriveTokens()
	assert.Equal(t, "at-1", access)
	assert.Equal(t, "rt-1", refresh)

	empty := Metadata{}
	assert.Empty(t, empty.DriveAuthStatus())
	access, refresh = empty.DriveTokens()
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestMetadataScanValue(t *testing.T) {
	m := Metadata{
		"user": map[string]any{"email": "a@example.com"},
	}

	val, err := m.Value()
	require.NoError(t, err)

	var restored Metadata
	require.NoError(t, restored.Scan(val))
	assert.Equal(t, "a@example.com", restored.Namespace("user")["email"])

	var fromNil Metadata
	require.NoError(t, fromNil.Scan(nil))
	assert.NotNil(t, fromNil)
}
