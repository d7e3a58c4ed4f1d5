package core

import (
	"strings"
)

// State key prefixes determine the durability scope of a key. Agent code reads
// and writes one flat namespace; stores route each key to its partition based
// on the prefix and present the union back as a single map.
const (
	// StateScopeApp keys ("app:...") are shared by every session of one app.
	StateScopeApp = "app"
	// StateScopeUser keys ("user:...") are shared by all sessions of one
	// (appName, userID) pair.
	StateScopeUser = "user"
	// StateScopeTemp keys ("temp:...") live only for the current processing
	// step and are never persisted by any backend.
	StateScopeTemp = "temp"
	// StateScopeSession is the default scope for unprefixed keys; lifetime is
	// the owning session.
	StateScopeSession = "session"
)

// StatePrefix* are the literal key prefixes, exported for callers that build
// scoped keys by hand.
const (
	StatePrefixApp  = StateScopeApp + ":"
	StatePrefixUser = StateScopeUser + ":"
	StatePrefixTemp = StateScopeTemp + ":"
)

// tombstone is the delete marker for state deltas. It marshals to a stable
// JSON string so persisted event actions round-trip through durable backends.
type tombstone struct{}

// Tombstone is the sentinel value placed in a StateDelta to request deletion
// of the key from its scope.
var Tombstone = tombstone{}

const tombstoneJSON = "__agentkit_delete__"

// MarshalJSON implements json.Marshaler.
func (tombstone) MarshalJSON() ([]byte, error) {
	return []byte(`"` + tombstoneJSON + `"`), nil
}

// IsTombstone reports whether v is the delete marker, either the in-process
// sentinel or its serialized form read back from a durable backend.
func IsTombstone(v any) bool {
	if _, ok := v.(tombstone); ok {
		return true
	}
	s, ok := v.(string)
	return ok && s == tombstoneJSON
}

// SplitScopedKey returns the scope of a state key plus the key stripped of its
// scope prefix. Unprefixed keys belong to the session scope. A key using an
// unrecognized "xxx:" prefix yields ok=false; stores reject such keys as
// validation errors rather than guessing a partition.
func SplitScopedKey(key string) (scope, rest string, ok bool) {
	idx := strings.Index(key, ":")
	if idx < 0 {
		return StateScopeSession, key, true
	}
	switch key[:idx] {
	case StateScopeApp:
		return StateScopeApp, key[idx+1:], true
	case StateScopeUser:
		return StateScopeUser, key[idx+1:], true
	case StateScopeTemp:
		return StateScopeTemp, key[idx+1:], true
	default:
		return "", "", false
	}
}

// ValidateStateValue checks that v is one of the basic serializable value
// types permitted in session state: nil, strings, booleans, numbers, and
// slices / string-keyed maps composed of those. The tombstone marker is always
// valid. Anything else (channels, funcs, arbitrary structs) is a programming
// error surfaced at the store boundary.
func ValidateStateValue(key string, v any) error {
	if IsTombstone(v) {
		return nil
	}
	return validateValue(key, v)
}

func validateValue(key string, v any) error {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case []any:
		for _, item := range val {
			if err := validateValue(key, item); err != nil {
				return err
			}
		}
		return nil
	case []string, []int, []float64, []bool:
		return nil
	case map[string]any:
		for _, item := range val {
			if err := validateValue(key, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return NewStateError(key, "unsupported value type %T", v)
	}
}

// ValidateStateDelta validates every key and value of a state delta. Keys with
// unknown scope prefixes and unserializable values are rejected wholesale so a
// failing delta never applies partially.
func ValidateStateDelta(delta map[string]any) error {
	for k, v := range delta {
		if _, _, ok := SplitScopedKey(k); !ok {
			return NewStateError(k, "unknown scope prefix")
		}
		if err := ValidateStateValue(k, v); err != nil {
			return err
		}
	}
	return nil
}
