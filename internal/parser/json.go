package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxJSONNesting = 512

var errJSONTooDeep = errors.New("json nesting too deep")

// jsonObject is a decoded JSON object that remembers key order.
type jsonObject struct {
	keys   []string
	values map[string]any
}

func (o *jsonObject) get(key string) any {
	if o == nil {
		return nil
	}
	return o.values[key]
}

func (o *jsonObject) has(key string) bool {
	if o == nil {
		return false
	}
	_, ok := o.values[key]
	return ok
}

func (o *jsonObject) str(key string) string {
	s, _ := o.get(key).(string)
	return strings.TrimSpace(s)
}

// decodeJSON decodes raw into strings, json.Number, bools, nil, []any and
// *jsonObject values.
func decodeJSON(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeJSONValue(dec, tok, 0)
}

func decodeJSONValue(dec *json.Decoder, tok json.Token, depth int) (any, error) {
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	if depth >= maxJSONNesting {
		return nil, errJSONTooDeep
	}

	switch delim {
	case '{':
		obj := &jsonObject{values: make(map[string]any)}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			v, err := decodeJSONValue(dec, vt, depth+1)
			if err != nil {
				return nil, err
			}
			if _, dup := obj.values[key]; !dup {
				obj.keys = append(obj.keys, key)
			}
			obj.values[key] = v
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := make([]any, 0)
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			v, err := decodeJSONValue(dec, vt, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}

	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}
