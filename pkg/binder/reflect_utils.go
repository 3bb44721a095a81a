package binder

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// bindToStruct copies values into the tagged fields of the struct v points to.
// Fields without a value keep whatever they held before.
func bindToStruct(v any, tagName string, lookup func(name string) []string, bindErr error) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: target must be a non-nil pointer", bindErr)
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("%w: target must be a pointer to struct", bindErr)
	}

	rt := rv.Type()
	for i := range rv.NumField() {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		name, ok := fieldTag(fieldType, tagName)
		if !ok {
			continue
		}

		values := lookup(name)
		if len(values) == 0 {
			continue
		}

		if err := setFieldValue(field, fieldType.Type, values); err != nil {
			return fmt.Errorf("%w: field %s: %v", bindErr, name, err)
		}
	}

	return nil
}

// fieldTag returns the source name of a field. Untagged fields and "-" are skipped,
// so a binder only ever touches fields that opted in.
func fieldTag(field reflect.StructField, tagName string) (string, bool) {
	tag := field.Tag.Get(tagName)
	if tag == "" || tag == "-" {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	return name, name != ""
}

func setFieldValue(field reflect.Value, fieldType reflect.Type, values []string) error {
	if fieldType.Kind() == reflect.Pointer {
		if field.IsNil() {
			field.Set(reflect.New(fieldType.Elem()))
		}
		return setFieldValue(field.Elem(), fieldType.Elem(), values)
	}

	if reflect.PointerTo(fieldType).Implements(textUnmarshalerType) {
		u := field.Addr().Interface().(encoding.TextUnmarshaler)
		if err := u.UnmarshalText([]byte(strings.TrimSpace(values[0]))); err != nil {
			return fmt.Errorf("invalid value %q: %v", values[0], err)
		}
		return nil
	}

	if fieldType.Kind() == reflect.Slice {
		return setSliceValue(field, fieldType, values)
	}

	value := strings.TrimSpace(values[0])
	switch fieldType.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, fieldType.Bits())
		if err != nil {
			return fmt.Errorf("invalid int value %q", value)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, fieldType.Bits())
		if err != nil {
			return fmt.Errorf("invalid uint value %q", value)
		}
		field.SetUint(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool value %q", value)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported type %s", fieldType.Kind())
	}

	return nil
}

// setSliceValue accepts repeated parameters as well as comma separated lists.
func setSliceValue(field reflect.Value, fieldType reflect.Type, values []string) error {
	var items []string
	for _, v := range values {
		for item := range strings.SplitSeq(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
	}

	slice := reflect.MakeSlice(fieldType, len(items), len(items))
	for i, item := range items {
		if err := setFieldValue(slice.Index(i), fieldType.Elem(), []string{item}); err != nil {
			return err
		}
	}

	field.Set(slice)
	return nil
}
