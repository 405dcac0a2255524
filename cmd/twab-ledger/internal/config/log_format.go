package config

import "fmt"

// LogFormat selects the formatter of the process logger.
type LogFormat int

const (
	LogFormatText LogFormat = iota
	LogFormatJSON
)

var logFormatNames = map[LogFormat]string{
	LogFormatText: "text",
	LogFormatJSON: "json",
}

func (f LogFormat) MarshalText() ([]byte, error) {
	name, ok := logFormatNames[f]
	if !ok {
		return nil, fmt.Errorf("unknown log format: %d", f)
	}
	return []byte(name), nil
}

func (f *LogFormat) UnmarshalText(text []byte) error {
	for format, name := range logFormatNames {
		if name == string(text) {
			*f = format
			return nil
		}
	}
	return fmt.Errorf("unknown log format: %s", text)
}

func (f LogFormat) String() string {
	if name, ok := logFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("LogFormat(%d)", int(f))
}
