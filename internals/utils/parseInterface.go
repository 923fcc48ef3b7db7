package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// ParseMap converts a loosely typed value (as decoded from YAML) into T
// through a JSON round trip.
func ParseMap[T any](object any, out *T) error {
	bytes, err := json.Marshal(object)
	if err != nil {
		return err
	}

	var temp T
	err = json.Unmarshal(bytes, &temp)
	if err != nil {
		return err
	}
	*out = temp
	return nil
}

// ParseMapKey decodes object[key] into out. A missing key leaves out
// untouched and returns a *MissingKeyError.
func ParseMapKey[T any](object map[string]any, key string, out *T) error {
	field, exists := object[key]
	if !exists || field == nil {
		return &MissingKeyError{Key: key}
	}

	var temp T
	if err := ParseMap(field, &temp); err != nil {
		return fmt.Errorf("type for %s mismatch %s", key, reflect.TypeOf(field).String())
	}
	*out = temp
	return nil
}

// ParseOptionalKey is ParseMapKey where a missing key is not an error.
func ParseOptionalKey[T any](object map[string]any, key string, out *T) error {
	err := ParseMapKey(object, key, out)
	var missing *MissingKeyError
	if errors.As(err, &missing) {
		return nil
	}
	return err
}

type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return "key " + e.Key + " doesn't exists in map"
}
