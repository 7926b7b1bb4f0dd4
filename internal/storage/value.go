package storage

import (
	"encoding/json"
	"fmt"
)

// Value kinds persisted by object and embedded backends.
const (
	KindHash = "hash"
	KindList = "list"
)

// Value is the envelope byte-oriented backends persist for one key.
type Value struct {
	Kind string            `json:"t"`
	Hash map[string]string `json:"h,omitempty"`
	List []string          `json:"l,omitempty"`
}

// EncodeValue marshals v.
func EncodeValue(v *Value) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage: encode value: %w", err)
	}
	return raw, nil
}

// DecodeValue unmarshals raw into a Value and checks its kind.
func DecodeValue(raw []byte) (*Value, error) {
	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("storage: decode value: %w", err)
	}
	switch v.Kind {
	case KindHash, KindList:
	default:
		return nil, fmt.Errorf("storage: decode value: unknown kind %q", v.Kind)
	}
	return &v, nil
}

// MergeHash returns current with fields merged in; a non-hash current is
// replaced.
func MergeHash(current *Value, fields map[string]string) *Value {
	if current == nil || current.Kind != KindHash {
		current = &Value{Kind: KindHash}
	}
	if current.Hash == nil {
		current.Hash = make(map[string]string, len(fields))
	}
	for field, v := range fields {
		current.Hash[field] = v
	}
	return current
}

// AppendList returns current with values appended; a non-list current is
// replaced.
func AppendList(current *Value, values ...string) *Value {
	if current == nil || current.Kind != KindList {
		current = &Value{Kind: KindList}
	}
	current.List = append(current.List, values...)
	return current
}

// HashOf returns the hash held by v, an empty map for a missing key, or
// ErrWrongType.
func HashOf(key string, v *Value) (map[string]string, error) {
	if v == nil {
		return map[string]string{}, nil
	}
	if v.Kind != KindHash {
		return nil, fmt.Errorf("%w: %s holds %s", ErrWrongType, key, v.Kind)
	}
	if v.Hash == nil {
		return map[string]string{}, nil
	}
	return v.Hash, nil
}

// ListOf returns the list held by v, an empty slice for a missing key, or
// ErrWrongType.
func ListOf(key string, v *Value) ([]string, error) {
	if v == nil {
		return []string{}, nil
	}
	if v.Kind != KindList {
		return nil, fmt.Errorf("%w: %s holds %s", ErrWrongType, key, v.Kind)
	}
	if v.List == nil {
		return []string{}, nil
	}
	return v.List, nil
}
