package detect

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DynamicMap is an arbitrary JSON-like object, as produced by decoding
// OCSF payloads or raw collector output
type DynamicMap map[string]interface{}

// Get retrieves a value by key, falling back to dot notation lookup
// into nested objects when no flat key exists
// Supports arbitrary nesting depth, e.g. metadata.product.name
func (m DynamicMap) Get(key string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	if val, ok := m[key]; ok {
		return val, true
	}
	bits := strings.SplitN(key, ".", 2)
	if len(bits) < 2 {
		return nil, false
	}
	switch val := m[bits[0]].(type) {
	case map[string]interface{}:
		return DynamicMap(val).Get(bits[1])
	case DynamicMap:
		return val.Get(bits[1])
	case map[interface{}]interface{}:
		return cleanUpInterfaceMap(val).Get(bits[1])
	default:
		return nil, false
	}
}

// Event is one normalized log record handed over by the ingest
// collaborator. Fields holds the OCSF or raw attribute namespace,
// Message the human-readable log line.
// An Event is owned by a single evaluation call and is not mutated by
// the engine; enrichment happens on a working copy.
type Event struct {
	Message string     `json:"message"`
	Fields  DynamicMap `json:"fields"`

	// lowercased serialization of the whole event, built lazily for
	// keyword rules so the cost is paid once per event, not per rule
	blob string
}

// Resolve maps a rule field selector to the event value as a string.
// Lookup order is flat keys, then dotted paths into nested objects,
// then the message pseudo-field. An absent field resolves to an
// empty string rather than an error, so a rule comparing against a
// missing field simply fails that comparison.
func (e *Event) Resolve(field string) string {
	if val, ok := e.Fields.Get(field); ok {
		return stringify(val)
	}
	if field == "message" {
		return e.Message
	}
	return ""
}

// SearchBlob serializes the full event into a single lowercased string
// for keyword rules
func (e *Event) SearchBlob() string {
	if e.blob != "" {
		return e.blob
	}
	b, err := json.Marshal(e)
	if err != nil {
		// fall back to the raw message, fields stay unsearchable
		e.blob = strings.ToLower(e.Message)
		return e.blob
	}
	e.blob = strings.ToLower(string(b))
	return e.blob
}

// Enrich produces a working copy with extracted fields attached under
// the extractor namespace. Only the top level map is copied as existing
// nested values are never modified, just read.
func (e *Event) Enrich(namespace string, fields DynamicMap) *Event {
	tx := make(DynamicMap, len(e.Fields)+1)
	for k, v := range e.Fields {
		tx[k] = v
	}
	tx[namespace] = map[string]interface{}(fields)
	return &Event{Message: e.Message, Fields: tx}
}

// stringify coerces arbitrary decoded values to their string form for
// comparison. JSON numbers arrive as float64, yaml as int.
func stringify(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Yaml can have non-string keys, so go-yaml unmarshals to
// map[interface{}]interface{}
func cleanUpInterfaceMap(rx map[interface{}]interface{}) DynamicMap {
	tx := make(DynamicMap)
	for k, v := range rx {
		tx[stringifyKey(k)] = v
	}
	return tx
}

func stringifyKey(key interface{}) string {
	if s, ok := key.(string); ok {
		return s
	}
	return stringify(key)
}
