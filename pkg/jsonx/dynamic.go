// Package jsonx holds small helpers for moving between typed Go values and
// the dynamic JSON shapes some SDKs require.
package jsonx

import "github.com/goccy/go-json"

// ToDynamicJSON converts any Go value into a map[string]any by a
// marshal/unmarshal round trip. It is used where an SDK wants a loosely
// typed JSON object, such as function-call parameter schemas.
func ToDynamicJSON(val any) (map[string]any, error) {
	result := make(map[string]any)
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}
