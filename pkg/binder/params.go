package binder

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Path fills `path:"name"` fields from chi URL parameters.
func Path() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return nil
		}
		values := make(map[string][]string, len(rctx.URLParams.Keys))
		for i, k := range rctx.URLParams.Keys {
			values[k] = []string{rctx.URLParams.Values[i]}
		}
		return bindToStruct(v, "path", values, ErrFailedToParsePath)
	}
}

// Query fills `query:"name"` fields from the URL query.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}

// bindToStruct sets tagged fields of the struct v points to. Fields without
// the tag are left alone.
func bindToStruct(v any, tagName string, values map[string][]string, bindErr error) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: target must be a pointer to struct", bindErr)
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rv.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get(tagName), ",")
		if name == "" || name == "-" {
			continue
		}
		vals := values[name]
		if len(vals) == 0 {
			continue
		}
		if err := setField(field, vals[0]); err != nil {
			return fmt.Errorf("%w: %s: %v", bindErr, name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return setField(field.Elem(), value)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool %q", value)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported type %s", field.Kind())
	}
	return nil
}
