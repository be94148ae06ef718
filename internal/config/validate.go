package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"ohlc-forecast/internal/candles"
)

var checker = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return tagName(fld)
	})
	_ = v.RegisterValidation("kline_interval", func(fl validator.FieldLevel) bool {
		_, err := candles.IntervalDuration(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("cron_expr", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// validate resets every invalid field to its default and reports it.
func validate(cfg *Config) []Warning {
	err := checker.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []Warning{{Message: err.Error()}}
	}

	fallback := Default()
	warnings := make([]Warning, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		dst := fieldByPath(reflect.ValueOf(cfg).Elem(), fe.StructNamespace())
		src := fieldByPath(reflect.ValueOf(fallback).Elem(), fe.StructNamespace())
		if dst.IsValid() && src.IsValid() && dst.CanSet() {
			dst.Set(src)
		}
		warnings = append(warnings, Warning{
			Key:     key,
			Message: fmt.Sprintf("%s, using default %v", describe(fe), src),
		})
	}
	return warnings
}

func fieldByPath(root reflect.Value, namespace string) reflect.Value {
	parts := strings.Split(namespace, ".")
	cur := root
	for _, name := range parts[1:] {
		if cur.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		cur = cur.FieldByName(name)
		if !cur.IsValid() {
			return cur
		}
	}
	return cur
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte", "min":
		return fmt.Sprintf("value %v must be at least %s", fe.Value(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("value %v must be at most %s", fe.Value(), fe.Param())
	case "lt":
		return fmt.Sprintf("value %v must be less than %s", fe.Value(), fe.Param())
	case "oneof":
		return fmt.Sprintf("value %v must be one of: %s", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "kline_interval":
		return fmt.Sprintf("invalid kline interval %q", fe.Value())
	case "cron_expr":
		return fmt.Sprintf("invalid cron expression %q", fe.Value())
	case "required":
		return "value is required"
	default:
		return fmt.Sprintf("value %v failed %s", fe.Value(), fe.Tag())
	}
}

func tagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
	if name == "" {
		return fld.Name
	}
	return name
}

// walk visits every leaf field with its dotted key.
func walk(prefix string, v reflect.Value, fn func(key string, field reflect.StructField, val reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := tagName(f)
		if name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			walk(key, fv, fn)
			continue
		}
		fn(key, f, fv)
	}
}
