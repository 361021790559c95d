// Package log2 solves these issues:
// - log level filtering, e.g. show poll timeouts in internal tests only
// - safe concurrent change of log level
// - fan out error messages to external reporting (telemetry)
//
// Primary goal was to run parallel tests and log into t.Logf() safely.
package log2

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math"
	"os"
	"sync/atomic"
	"testing"
)

const (
	// type specified here helped against accidentally passing flags as level
	Lmicroseconds     int = log.Lmicroseconds
	Lshortfile        int = log.Lshortfile
	LStdFlags         int = log.Ltime | Lshortfile
	LInteractiveFlags int = log.Ltime | Lshortfile | Lmicroseconds
	LServiceFlags     int = Lshortfile
	LTestFlags        int = Lshortfile | Lmicroseconds
)

type Level int32

const (
	LError Level = iota
	LInfo
	LDebug
	LAll Level = math.MaxInt32
)

type Func func(format string, args ...interface{})

// ErrorFunc receives every Error/Errorf message, see SetErrorFunc.
type ErrorFunc func(error)

type Log struct {
	l       *log.Logger
	level   Level
	w       io.Writer
	fatalf  Func
	onError atomic.Value // ErrorFunc
}

func NewStderr(level Level) *Log { return NewWriter(os.Stderr, level) }

func NewWriter(w io.Writer, level Level) *Log {
	if w == ioutil.Discard {
		return nil
	}
	return &Log{
		l:     log.New(w, "", LStdFlags),
		level: level,
		w:     w,
	}
}

type FuncWriter struct{ Func }

func (fw FuncWriter) Write(b []byte) (int, error) {
	fw.Func(string(b))
	return len(b), nil
}

func NewFunc(f Func, level Level) *Log { return NewWriter(FuncWriter{f}, level) }

func NewTest(t testing.TB, level Level) *Log {
	l := NewFunc(t.Logf, level)
	l.fatalf = t.Fatalf
	return l
}

func (l *Log) Clone(level Level) *Log {
	if l == nil {
		return nil
	}
	n := NewWriter(l.w, level)
	n.fatalf = l.fatalf
	n.SetFlags(l.l.Flags())
	return n
}

func (l *Log) SetLevel(level Level) {
	if l == nil {
		return
	}
	atomic.StoreInt32((*int32)(&l.level), int32(level))
}

func (l *Log) SetFlags(f int) {
	if l == nil {
		return
	}
	l.l.SetFlags(f)
}

func (l *Log) SetPrefix(prefix string) {
	if l == nil {
		return
	}
	l.l.SetPrefix(prefix)
}

// SetErrorFunc registers a hook called with every Error/Errorf message.
// Used to forward device errors to telemetry without an import cycle.
func (l *Log) SetErrorFunc(f ErrorFunc) {
	if l == nil {
		return
	}
	l.onError.Store(f)
}

func (l *Log) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return atomic.LoadInt32((*int32)(&l.level)) >= int32(level)
}

func (l *Log) Log(level Level, s string) {
	if l.Enabled(level) {
		_ = l.l.Output(3, s)
	}
}

func (l *Log) Logf(level Level, format string, args ...interface{}) {
	if l.Enabled(level) {
		_ = l.l.Output(3, fmt.Sprintf(format, args...))
	}
}

func (l *Log) Printf(format string, args ...interface{}) { l.Logf(LInfo, format, args...) }

func (l *Log) Println(args ...interface{}) { l.Log(LInfo, fmt.Sprintln(args...)) }

func (l *Log) Error(args ...interface{}) {
	l.Log(LError, "error: "+fmt.Sprint(args...))
	l.errorHook(fmt.Errorf("%s", fmt.Sprint(args...)))
}

func (l *Log) Errorf(format string, args ...interface{}) {
	l.Logf(LError, "error: "+format, args...)
	l.errorHook(fmt.Errorf(format, args...))
}

func (l *Log) Info(args ...interface{}) { l.Log(LInfo, fmt.Sprint(args...)) }

func (l *Log) Infof(format string, args ...interface{}) { l.Logf(LInfo, format, args...) }

func (l *Log) Debug(args ...interface{}) { l.Log(LDebug, "debug: "+fmt.Sprint(args...)) }

func (l *Log) Debugf(format string, args ...interface{}) { l.Logf(LDebug, "debug: "+format, args...) }

func (l *Log) Fatal(args ...interface{}) {
	s := fmt.Sprint(args...)
	if l != nil && l.fatalf != nil {
		l.fatalf(s)
	} else {
		l.Logf(LError, "fatal: "+s)
		os.Exit(1)
	}
}

func (l *Log) Fatalf(format string, args ...interface{}) {
	if l != nil && l.fatalf != nil {
		l.fatalf(format, args...)
	} else {
		l.Logf(LError, "fatal: "+format, args...)
		os.Exit(1)
	}
}

func (l *Log) errorHook(e error) {
	if l == nil {
		return
	}
	if f, ok := l.onError.Load().(ErrorFunc); ok && f != nil {
		f(e)
	}
}
