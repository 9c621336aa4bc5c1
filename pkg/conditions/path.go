package conditions

import "strings"

// Dig resolves a dot-separated field path against a JSON-like object tree.
// The second return is false when any segment is absent.
func Dig(data map[string]any, path string) (any, bool) {
	if path == "" {
		return data, data != nil
	}

	segments := strings.Split(path, ".")

	var current any = data

	for _, segment := range segments {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = object[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
