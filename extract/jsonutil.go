package extract

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/titanous/json5"
	"github.com/ysmood/gson"
)

// decodeJSON strictly parses a script body. Comment wrappers and trailing
// semicolons that some CMSs emit around JSON-LD are tolerated.
func decodeJSON(raw string) (gson.JSON, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<!--")
	raw = strings.TrimSuffix(raw, "-->")
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "<![CDATA[")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "]]>")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), ";")
	if raw == "" {
		return gson.New(nil), false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return gson.New(nil), false
	}
	return gson.New(v), true
}

// decodeLiteral parses a JavaScript object literal: strict JSON first,
// then JSON5 for unquoted keys, single quotes and trailing commas.
func decodeLiteral(raw string) (gson.JSON, bool) {
	if j, ok := decodeJSON(raw); ok {
		return j, true
	}
	var v any
	if err := json5.Unmarshal([]byte(raw), &v); err != nil {
		return gson.New(nil), false
	}
	return gson.New(v), true
}

// isObject reports whether j holds a JSON object.
func isObject(j gson.JSON) bool {
	_, ok := j.Val().(map[string]any)
	return ok
}

func isArray(j gson.JSON) bool {
	_, ok := j.Val().([]any)
	return ok
}

// get returns j[key], or a JSON null when j is not an object or lacks key.
func get(j gson.JSON, key string) gson.JSON {
	if !isObject(j) {
		return gson.New(nil)
	}
	if v, ok := j.Map()[key]; ok {
		return v
	}
	return gson.New(nil)
}

func has(j gson.JSON, key string) bool {
	if !isObject(j) {
		return false
	}
	_, ok := j.Map()[key]
	return ok
}

// first unwraps a one-of-many value: the first element of an array, or j
// itself otherwise.
func first(j gson.JSON) gson.JSON {
	if !isArray(j) {
		return j
	}
	if arr := j.Arr(); len(arr) > 0 {
		return arr[0]
	}
	return gson.New(nil)
}

// str returns the trimmed string value of j, or "".
func str(j gson.JSON) string {
	s, _ := j.Val().(string)
	return strings.TrimSpace(s)
}

// boolean reports j's value when it is a JSON boolean.
func boolean(j gson.JSON) (bool, bool) {
	b, ok := j.Val().(bool)
	return b, ok
}

// keys lists object keys in sorted order.
func keys(j gson.JSON) []string {
	if !isObject(j) {
		return nil
	}
	m := j.Map()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// refs collects string values from a string, an object with one of the
// given URL keys, or an array of either. Used for image lists and @type.
func refs(j gson.JSON, urlKeys ...string) []string {
	var out []string
	var walk func(v gson.JSON)
	walk = func(v gson.JSON) {
		switch {
		case isArray(v):
			for _, item := range v.Arr() {
				walk(item)
			}
		case isObject(v):
			for _, k := range urlKeys {
				if s := str(get(v, k)); s != "" {
					out = append(out, s)
					return
				}
			}
		default:
			if s := str(v); s != "" {
				out = append(out, s)
			}
		}
	}
	walk(j)
	return out
}
