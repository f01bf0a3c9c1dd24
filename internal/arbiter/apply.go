package arbiter

import (
	"fmt"
	"reflect"
)

// applyOptions copies resolved option values onto a config struct. The
// target must be a non-nil pointer to a struct; fields opt into
// arbitration via an `opt:"key"` tag (opt:"-" excludes a field).
func applyOptions(group string, target any, vals map[string]any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config group '%s': target must be a non-nil struct pointer, got %T", group, target)
	}
	elem := rv.Elem()

	fields := make(map[string]reflect.Value)
	rt := elem.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("opt")
		if tag == "" || tag == "-" {
			continue
		}
		fields[tag] = elem.Field(i)
	}

	for _, option := range sortedKeys(vals) {
		field, ok := fields[option]
		if !ok {
			return &UnknownOptionError{Group: group, Option: option}
		}
		if err := setField(field, vals[option]); err != nil {
			return fmt.Errorf("config group '%s', option '%s': %w", group, option, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value any) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	// Numeric widening only (e.g. int option onto an int64 field). Other
	// conversions like int->string would silently corrupt the config.
	if isNumeric(rv.Kind()) && isNumeric(field.Kind()) && rv.Type().ConvertibleTo(field.Type()) {
		field.Set(rv.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to field of type %s", value, field.Type())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
