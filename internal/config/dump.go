package config

import (
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// YAML renders the effective configuration with durations in human form and secrets redacted.
func (c *Config) YAML() ([]byte, error) {
	root := map[string]any{}
	walk("", reflect.ValueOf(c).Elem(), func(key string, field reflect.StructField, val reflect.Value) {
		setNested(root, strings.Split(key, "."), displayValue(field, val))
	})
	return yaml.Marshal(root)
}

func displayValue(field reflect.StructField, val reflect.Value) any {
	if field.Tag.Get("secret") == "true" {
		if val.String() == "" {
			return ""
		}
		return redacted
	}
	if d, ok := val.Interface().(time.Duration); ok {
		return d.String()
	}
	return val.Interface()
}

func setNested(m map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}
