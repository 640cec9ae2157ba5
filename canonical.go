package cloudobjects

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/goliatone/go-errors"
)

// canonicalJSON serializes v deterministically: object keys deep-sorted,
// arrays sorted by the serialized form of their (recursively sorted)
// members. Structurally equal values serialize identically regardless of
// input ordering, which is what lets GET-style calls carry a payload inside
// a cacheable query string.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "payload is not serializable")
	}

	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to normalize payload")
	}

	out, err := json.Marshal(canonicalize(normalized))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to serialize canonical payload")
	}
	return out, nil
}

// canonicalize deep-sorts a json.Unmarshal-shaped value in place. Map keys
// need no explicit sort: encoding/json emits map[string]any keys in sorted
// order. Arrays are sorted after their members are canonicalized.
func canonicalize(v any) any {
	switch value := v.(type) {
	case map[string]any:
		for key, member := range value {
			value[key] = canonicalize(member)
		}
		return value
	case []any:
		for i, member := range value {
			value[i] = canonicalize(member)
		}
		sort.SliceStable(value, func(i, j int) bool {
			left, _ := json.Marshal(value[i])
			right, _ := json.Marshal(value[j])
			return bytes.Compare(left, right) < 0
		})
		return value
	default:
		return value
	}
}
