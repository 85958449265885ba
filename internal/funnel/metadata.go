// AngelaMos | 2026
// metadata.go

package funnel

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Namespaces the funnel writes into the metadata document. Unknown
// top-level keys are carried through untouched so older documents keep
// whatever they accumulated.
const (
	NamespaceUser            = "user"
	NamespacePayment         = "payment"
	NamespaceDrive           = "drive"
	NamespaceWorkspaceStatus = "workspace_status"

	KeyAllowedTransitions = "allowed_transitions"
)

// Drive namespace fields the engine inspects.
const (
	DriveFieldAuthStatus = "auth_status"
	DriveFieldTokens     = "tokens"

	DriveStatusPending   = "pending"
	DriveStatusConnected = "connected"
)

// Metadata is the per-user state document stored as jsonb. It behaves
// as a document, not a struct: namespaces are added over time and a
// partial patch must never erase what it does not mention.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan metadata: unsupported type %T", src)
	}

	if len(data) == 0 {
		*m = Metadata{}
		return nil
	}

	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("scan metadata: %w", err)
	}
	return nil
}

// Merge applies a patch one namespace deep: top-level keys the patch
// omits are kept, and when both sides hold a map the patch's fields win
// without erasing the base's other fields. The receiver is not mutated.
func (m Metadata) Merge(patch Metadata) Metadata {
	merged := m.Clone()

	for key, patchVal := range patch {
		baseVal, exists := merged[key]
		if !exists {
			merged[key] = patchVal
			continue
		}

		baseMap, baseIsMap := asMap(baseVal)
		patchMap, patchIsMap := asMap(patchVal)
		if !baseIsMap || !patchIsMap {
			merged[key] = patchVal
			continue
		}

		combined := make(map[string]any, len(baseMap)+len(patchMap))
		for k, v := range baseMap {
			combined[k] = v
		}
		for k, v := range patchMap {
			combined[k] = v
		}
		merged[key] = combined
	}

	return merged
}

func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}

	clone := make(Metadata, len(m))
	for key, val := range m {
		if valMap, ok := asMap(val); ok {
			inner := make(map[string]any, len(valMap))
			for k, v := range valMap {
				inner[k] = v
			}
			clone[key] = inner
			continue
		}
		clone[key] = val
	}
	return clone
}

// Namespace returns the named section, or an empty map when absent.
func (m Metadata) Namespace(name string) map[string]any {
	if ns, ok := asMap(m[name]); ok {
		return ns
	}
	return map[string]any{}
}

// StampAllowedTransitions records the legal next states for the given
// state so clients can render navigation without knowing the graph.
func (m Metadata) StampAllowedTransitions(s State) {
	next := AllowedTransitions(s)
	out := make([]string, len(next))
	for i, state := range next {
		out[i] = state.String()
	}
	m[KeyAllowedTransitions] = out
}

// DriveAuthStatus reads drive.auth_status, empty when unset.
func (m Metadata) DriveAuthStatus() string {
	if status, ok := m.Namespace(NamespaceDrive)[DriveFieldAuthStatus].(string); ok {
		return status
	}
	return ""
}

// DriveTokens reads drive.tokens, the canonical home of the OAuth pair.
func (m Metadata) DriveTokens() (access, refresh string) {
	tokens, ok := asMap(m.Namespace(NamespaceDrive)[DriveFieldTokens])
	if !ok {
		return "", ""
	}
	access, _ = tokens["access_token"].(string)
	refresh, _ = tokens["refresh_token"].(string)
	return access, refresh
}

func asMap(v any) (map[string]any, bool) {
	switch typed := v.(type) {
	case map[string]any:
		return typed, true
	case Metadata:
		return typed, true
	default:
		return nil, false
	}
}
