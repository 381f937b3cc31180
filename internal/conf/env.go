package conf

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

type envUnmarshaler interface {
	unmarshalEnv(string) error
}

func loadEnvInternal(env map[string]string, prefix string, rv reflect.Value) error {
	rt := rv.Type()

	if i, ok := rv.Addr().Interface().(envUnmarshaler); ok {
		if ev, ok := env[prefix]; ok {
			err := i.unmarshalEnv(ev)
			if err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
		}
		return nil
	}

	switch rt {
	case reflect.TypeOf(""):
		if ev, ok := env[prefix]; ok {
			rv.SetString(ev)
		}
		return nil

	case reflect.TypeOf(int(0)):
		if ev, ok := env[prefix]; ok {
			iv, err := strconv.ParseInt(ev, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			rv.SetInt(iv)
		}
		return nil

	case reflect.TypeOf(float64(0)):
		if ev, ok := env[prefix]; ok {
			fv, err := strconv.ParseFloat(ev, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			rv.SetFloat(fv)
		}
		return nil

	case reflect.TypeOf(bool(false)):
		if ev, ok := env[prefix]; ok {
			switch strings.ToLower(ev) {
			case "yes", "true":
				rv.SetBool(true)

			case "no", "false":
				rv.SetBool(false)

			default:
				return fmt.Errorf("%s: invalid value '%s'", prefix, ev)
			}
		}
		return nil

	case reflect.TypeOf(time.Duration(0)):
		if ev, ok := env[prefix]; ok {
			dv, err := time.ParseDuration(ev)
			if err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			rv.SetInt(int64(dv))
		}
		return nil

	case reflect.TypeOf([]string(nil)):
		if ev, ok := env[prefix]; ok {
			if ev == "" {
				rv.Set(reflect.ValueOf([]string{}))
			} else {
				rv.Set(reflect.ValueOf(strings.Split(ev, ",")))
			}
		}
		return nil
	}

	if rt.Kind() == reflect.Struct {
		flen := rt.NumField()
		for i := 0; i < flen; i++ {
			f := rt.Field(i)

			if f.Tag.Get("yaml") == "-" {
				continue
			}

			err := loadEnvInternal(env, prefix+"_"+strings.ToUpper(f.Name), rv.Field(i))
			if err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("unsupported type: %v", rt)
}

func loadFromEnvironment(prefix string, v interface{}) error {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		tmp := strings.SplitN(kv, "=", 2)
		env[tmp[0]] = tmp[1]
	}

	return loadEnvInternal(env, prefix, reflect.ValueOf(v).Elem())
}
