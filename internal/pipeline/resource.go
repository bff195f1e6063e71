package pipeline

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Parsing helpers shared by the per-provider resource builders. A provider
// body that is not JSON, or that lacks the promised top-level key, is a
// contract violation: the organizer turns the returned error into a fatal,
// non-retryable failure.

func decodeBody(body []byte) (map[string]any, error) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "resource: malformed JSON body")
	}
	return parsed, nil
}

// topObject returns the expected top-level key as an object. A JSON null is
// surfaced as nil with ok=true so builders can model "present but empty" as
// a valid empty result.
func topObject(body []byte, key string) (map[string]any, error) {
	parsed, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	raw, present := parsed[key]
	if !present {
		return nil, eris.Errorf("resource: body missing expected key %q", key)
	}
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, eris.Errorf("resource: key %q is not an object", key)
	}
	return obj, nil
}

// topArray returns the expected top-level key as an array. An empty array is
// a valid empty result, not an error.
func topArray(body []byte, key string) ([]any, error) {
	parsed, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	raw, present := parsed[key]
	if !present {
		return nil, eris.Errorf("resource: body missing expected key %q", key)
	}
	if raw == nil {
		return []any{}, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, eris.Errorf("resource: key %q is not an array", key)
	}
	return arr, nil
}

func strField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func boolField(obj map[string]any, key string) (bool, bool) {
	b, ok := obj[key].(bool)
	return b, ok
}
