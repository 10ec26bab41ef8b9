package logsvc

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/fatih/color"

	"github.com/trezcool/assessly/core"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ConsoleLogger prints colored, leveled lines. It is used by the terminal player, where rollbar is not wanted.
type ConsoleLogger struct {
	std   *log.Logger
	level Level
}

var _ core.Logger = (*ConsoleLogger)(nil)

func NewConsoleLogger(out io.Writer, level Level) *ConsoleLogger {
	return &ConsoleLogger{
		std:   log.New(out, "", log.Ltime|log.Lmicroseconds),
		level: level,
	}
}

func (l *ConsoleLogger) print(level Level, msg string, args []interface{}) {
	if level < l.level {
		return
	}

	var tag string
	switch level {
	case LevelDebug:
		tag = color.MagentaString("DEBUG:")
	case LevelInfo:
		tag = color.HiBlueString("INFO:")
	case LevelWarn:
		tag = color.YellowString("WARN:")
	default:
		tag = color.RedString("ERROR:")
	}

	extras := make([]string, 0, len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case core.Learner:
			extras = append(extras, color.GreenString("learner")+"="+a.ID)
		case error:
			extras = append(extras, color.GreenString("err")+"="+a.Error())
		case map[string]interface{}:
			for k, v := range a {
				extras = append(extras, color.GreenString(k)+"="+fmt.Sprint(v))
			}
		default:
			extras = append(extras, fmt.Sprint(a))
		}
	}
	l.std.Println(tag, msg, strings.Join(extras, " "))
}

func (l *ConsoleLogger) Debug(msg string, args ...interface{}) { l.print(LevelDebug, msg, args) }
func (l *ConsoleLogger) Info(msg string, args ...interface{})  { l.print(LevelInfo, msg, args) }
func (l *ConsoleLogger) Warn(msg string, args ...interface{})  { l.print(LevelWarn, msg, args) }
func (l *ConsoleLogger) Error(msg string, args ...interface{}) { l.print(LevelError, msg, args) }

func (l *ConsoleLogger) Fatal(msg string, args ...interface{}) {
	l.print(LevelFatal, msg, args)
	l.std.Fatal(msg)
}
