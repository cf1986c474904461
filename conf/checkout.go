package conf

import (
	"fmt"
	"reflect"
	"strconv"
)

/*
   Checkout populates a struct from configuration using the `conf` and
   `conf_default` field tags. The argument must be a pointer to a struct;
   supported field kinds are string, int, int32, int64, bool, and float64.
   A field with no `conf` tag is skipped. When the configured value is empty
   the `conf_default` tag, if present, is applied instead.
*/
func Checkout(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("conf: Checkout requires a pointer to a struct, received %T", v)
	}

	elem := rv.Elem()
	t := elem.Type()

	for i := 0; i < elem.NumField(); i++ {
		field := t.Field(i)
		key, ok := field.Tag.Lookup("conf")
		if !ok {
			continue
		}

		value := GetEnv(key)
		if value == "" {
			value = field.Tag.Get("conf_default")
		}
		if value == "" {
			continue
		}

		target := elem.Field(i)
		if !target.CanSet() {
			return fmt.Errorf("conf: cannot set field %s", field.Name)
		}

		switch target.Kind() {
		case reflect.String:
			target.SetString(value)
		case reflect.Int, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("conf: field %s: %s is not an integer", field.Name, value)
			}
			target.SetInt(n)
		case reflect.Bool:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("conf: field %s: %s is not a bool", field.Name, value)
			}
			target.SetBool(b)
		case reflect.Float64:
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("conf: field %s: %s is not a float", field.Name, value)
			}
			target.SetFloat(f)
		default:
			return fmt.Errorf("conf: unsupported field kind %s for %s", target.Kind(), field.Name)
		}
	}

	return nil
}
