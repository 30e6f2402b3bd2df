// Package modeljson decodes and checks JSON produced by a language model under a declared schema.
package modeljson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// Extract returns the JSON document in a model reply. A reply that is not JSON as a whole falls
// back to the span from its first '{' to its last '}', which drops code fences and chatter.
func Extract(outputText string) ([]byte, error) {
	text := []byte(strings.TrimSpace(outputText))
	if len(text) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if json.Valid(text) {
		return text, nil
	}
	first, last := bytes.IndexByte(text, '{'), bytes.LastIndexByte(text, '}')
	if first < 0 || last <= first {
		return nil, fmt.Errorf("reply of %d bytes holds no JSON object", len(text))
	}
	if obj := text[first : last+1]; json.Valid(obj) {
		return obj, nil
	}
	return nil, fmt.Errorf("JSON object in reply of %d bytes is invalid", len(text))
}

// Decode extracts the JSON object from outputText and unmarshals it into v.
func Decode(outputText string, v any) error {
	b, err := Extract(outputText)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode model JSON (%d bytes): %w", len(b), err)
	}
	return nil
}

// MissingFields reports which of the given top-level paths are absent from data.
func MissingFields(data []byte, paths ...string) []string {
	var missing []string
	for _, p := range paths {
		if !gjson.GetBytes(data, p).Exists() {
			missing = append(missing, p)
		}
	}
	return missing
}

// MissingInEach checks every element of the array at arrayPath for the given fields.
// Missing entries are reported as "arrayPath.index.field".
func MissingInEach(data []byte, arrayPath string, fields ...string) []string {
	arr := gjson.GetBytes(data, arrayPath)
	if !arr.IsArray() {
		return nil
	}
	var missing []string
	i := 0
	arr.ForEach(func(_, item gjson.Result) bool {
		for _, f := range fields {
			if !item.Get(f).Exists() {
				missing = append(missing, fmt.Sprintf("%s.%d.%s", arrayPath, i, f))
			}
		}
		i++
		return true
	})
	return missing
}

var reflector = jsonschema.Reflector{
	DoNotReference:             true,
	RequiredFromJSONSchemaTags: true,
}

// GenerateSchema reflects T into a schema for strict structured output: objects are closed and
// every property is required, listed in name order.
func GenerateSchema[T any]() map[string]interface{} {
	var zero T
	b, err := json.Marshal(reflector.Reflect(zero))
	if err != nil {
		panic(fmt.Sprintf("modeljson: reflect %T: %v", zero, err))
	}
	var root map[string]interface{}
	if err := json.Unmarshal(b, &root); err != nil {
		panic(fmt.Sprintf("modeljson: reflect %T: %v", zero, err))
	}
	closeObjects(root)
	return root
}

func closeObjects(node map[string]interface{}) {
	props, _ := node["properties"].(map[string]interface{})
	if node["type"] == "object" {
		node["additionalProperties"] = false
		if len(props) > 0 {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			node["required"] = names
		}
	}
	for _, p := range props {
		if child, ok := p.(map[string]interface{}); ok {
			closeObjects(child)
		}
	}
	if items, ok := node["items"].(map[string]interface{}); ok {
		closeObjects(items)
	}
}
