package conf

import (
	"fmt"
	"strings"

	"github.com/streamsight/streamsight/internal/logger"
)

// LogDestinations is the logDestinations parameter.
type LogDestinations map[logger.Destination]struct{}

func (d *LogDestinations) fill(in []string) error {
	*d = make(LogDestinations)

	for _, v := range in {
		switch v {
		case "stdout":
			(*d)[logger.DestinationStdout] = struct{}{}

		case "file":
			(*d)[logger.DestinationFile] = struct{}{}

		default:
			return fmt.Errorf("invalid log destination: %s", v)
		}
	}

	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *LogDestinations) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in []string
	err := unmarshal(&in)
	if err != nil {
		return err
	}

	return d.fill(in)
}

func (d *LogDestinations) unmarshalEnv(s string) error {
	return d.fill(strings.Split(s, ","))
}
