package conf

import (
	"fmt"
)

// SourceType is the kind of frame source behind a stream.
type SourceType string

// Supported source types.
const (
	SourceFile   SourceType = "file"
	SourceCamera SourceType = "camera"
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *SourceType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	err := unmarshal(&in)
	if err != nil {
		return err
	}

	switch SourceType(in) {
	case SourceFile, SourceCamera:
		*t = SourceType(in)

	default:
		return fmt.Errorf("invalid source type: %s", in)
	}

	return nil
}

func (t *SourceType) unmarshalEnv(s string) error {
	return t.UnmarshalYAML(func(i interface{}) error {
		*(i.(*string)) = s
		return nil
	})
}
