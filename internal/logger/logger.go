// Package logger contains a logger implementation.
package logger

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// Level is a log level.
type Level int

// Log levels.
const (
	Debug Level = iota + 1
	Info
	Warn
	Error
)

// Destination is a log destination.
type Destination int

const (
	// DestinationStdout writes logs to the standard output.
	DestinationStdout Destination = iota

	// DestinationFile writes logs to a file.
	DestinationFile
)

// Logger is a log handler.
type Logger struct {
	level        Level
	destinations map[Destination]struct{}

	mutex    sync.Mutex
	file     *os.File
	useColor bool
	buffer   bytes.Buffer
}

// New allocates a Logger.
func New(level Level, destinations map[Destination]struct{}, filePath string) (*Logger, error) {
	lg := &Logger{
		level:        level,
		destinations: destinations,
		useColor:     term.IsTerminal(int(os.Stdout.Fd())),
	}

	if _, ok := destinations[DestinationFile]; ok {
		var err error
		lg.file, err = os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
	}

	return lg, nil
}

// Close closes a Logger.
func (lg *Logger) Close() {
	if lg.file != nil {
		lg.file.Close()
	}
}

// https://golang.org/src/log/log.go#L78
func itoa(i int, wid int) []byte {
	var b [20]byte
	bp := len(b) - 1
	for i >= 10 || wid > 1 {
		wid--
		q := i / 10
		b[bp] = byte('0' + i - q*10)
		bp--
		i = q
	}
	b[bp] = byte('0' + i)
	return b[bp:]
}

func writeTime(buf *bytes.Buffer, doColor bool) {
	var intbuf bytes.Buffer

	now := time.Now()
	year, month, day := now.Date()
	intbuf.Write(itoa(year, 4))
	intbuf.WriteByte('/')
	intbuf.Write(itoa(int(month), 2))
	intbuf.WriteByte('/')
	intbuf.Write(itoa(day, 2))
	intbuf.WriteByte(' ')

	hour, minute, sec := now.Clock()
	intbuf.Write(itoa(hour, 2))
	intbuf.WriteByte(':')
	intbuf.Write(itoa(minute, 2))
	intbuf.WriteByte(':')
	intbuf.Write(itoa(sec, 2))
	intbuf.WriteByte(' ')

	if doColor {
		buf.WriteString(color.RenderString(color.Gray.Code(), intbuf.String()))
	} else {
		buf.WriteString(intbuf.String())
	}
}

func writeLevel(buf *bytes.Buffer, level Level, doColor bool) {
	var label string
	var code string

	switch level {
	case Debug:
		label, code = "DEB", color.Debug.Code()
	case Info:
		label, code = "INF", color.Green.Code()
	case Warn:
		label, code = "WAR", color.Warn.Code()
	default:
		label, code = "ERR", color.Error.Code()
	}

	if doColor {
		buf.WriteString(color.RenderString(code, label))
	} else {
		buf.WriteString(label)
	}
	buf.WriteByte(' ')
}

// Log writes a log entry.
func (lg *Logger) Log(level Level, format string, args ...interface{}) {
	if level < lg.level {
		return
	}

	lg.mutex.Lock()
	defer lg.mutex.Unlock()

	if _, ok := lg.destinations[DestinationStdout]; ok {
		lg.buffer.Reset()
		writeTime(&lg.buffer, lg.useColor)
		writeLevel(&lg.buffer, level, lg.useColor)
		fmt.Fprintf(&lg.buffer, format, args...)
		lg.buffer.WriteByte('\n')
		os.Stdout.Write(lg.buffer.Bytes())
	}

	if _, ok := lg.destinations[DestinationFile]; ok {
		lg.buffer.Reset()
		writeTime(&lg.buffer, false)
		writeLevel(&lg.buffer, level, false)
		fmt.Fprintf(&lg.buffer, format, args...)
		lg.buffer.WriteByte('\n')
		lg.file.Write(lg.buffer.Bytes())
	}
}
