// Package env reads typed settings from the process environment. Blank
// values count as unset so an exported empty variable keeps the default.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Lookup returns the trimmed value of key and whether it is non-blank.
func Lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func String(key, def string) string {
	return orDefault(key, def, func(v string) (string, error) { return v, nil })
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	return parse(key, def, time.ParseDuration)
}

func Bool(key string, def bool) (bool, error) {
	return parse(key, def, strconv.ParseBool)
}

func Int(key string, def int) (int, error) {
	return parse(key, def, strconv.Atoi)
}

// List splits a comma separated value, dropping blank entries.
func List(key string, def []string) []string {
	return orDefault(key, def, func(v string) ([]string, error) {
		var out []string
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	})
}

func parse[T any](key string, def T, fn func(string) (T, error)) (T, error) {
	v, ok := Lookup(key)
	if !ok {
		return def, nil
	}
	out, err := fn(v)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return out, nil
}

func orDefault[T any](key string, def T, fn func(string) (T, error)) T {
	out, _ := parse(key, def, fn)
	return out
}
