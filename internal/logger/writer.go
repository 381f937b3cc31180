package logger

// Writer is an object that provides a log method.
type Writer interface {
	Log(level Level, format string, args ...interface{})
}
