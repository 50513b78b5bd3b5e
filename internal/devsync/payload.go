package devsync

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// DecodeIDs extracts script ids from an invalidate event. Accepted payloads:
// a list of ids, an object with an "ids" list, a single id, or a JSON string
// holding one of those. No payload means every script.
func DecodeIDs(data ...any) ([]string, error) {
	if len(data) == 0 || data[0] == nil {
		return nil, nil
	}

	switch v := data[0].(type) {
	case []string:
		return v, nil
	case []any:
		return stringList(v)
	case map[string]any:
		raw, ok := v["ids"]
		if !ok {
			return nil, fmt.Errorf("payload object has no ids")
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("ids has type %T, want a list", raw)
		}
		return stringList(list)
	case []byte:
		return decodeJSON(string(v))
	case string:
		if gjson.Valid(v) {
			if res := gjson.Parse(v); res.IsArray() || res.IsObject() {
				return decodeJSON(v)
			}
		}
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}

func decodeJSON(raw string) ([]string, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	res := gjson.Parse(raw)
	if res.IsObject() {
		res = res.Get("ids")
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("payload holds no id list")
	}
	var ids []string
	for _, item := range res.Array() {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("id %s is not a string", item.Raw)
		}
		ids = append(ids, item.String())
	}
	return ids, nil
}

func stringList(items []any) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("id %v has type %T, want string", item, item)
		}
		ids = append(ids, s)
	}
	return ids, nil
}
