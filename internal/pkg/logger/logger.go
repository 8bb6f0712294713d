// Package logger is the structured JSON logger shared by every service.
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

var std = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{logrus.FieldKeyMsg: "msg"},
	})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(out)
	return l
}

// SetLevel accepts logrus level names ("debug", "info", "warn", "error").
// Unknown names leave the level unchanged and return an error.
func SetLevel(name string) error {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	std.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) { std.SetOutput(w) }

// Get exposes the underlying logger for libraries that want a *logrus.Logger.
func Get() *logrus.Logger { return std }

func Debug(msg string, kv ...interface{}) { entry(kv).Debug(msg) }
func Info(msg string, kv ...interface{})  { entry(kv).Info(msg) }
func Warn(msg string, kv ...interface{})  { entry(kv).Warn(msg) }
func Error(msg string, kv ...interface{}) { entry(kv).Error(msg) }

func entry(kv []interface{}) *logrus.Entry {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		switch v := kv[i+1].(type) {
		case error:
			fields[key] = redact(key, v.Error())
		case string:
			fields[key] = redact(key, v)
		case fmt.Stringer:
			fields[key] = redact(key, v.String())
		default:
			fields[key] = v
		}
	}
	return std.WithFields(fields)
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redact(key, val string) string {
	if strings.Contains(strings.ToLower(key), "email") {
		return RedactEmail(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}

// RedactEmail masks the local part of an address: "john.doe@example.com"
// becomes "jo***@example.com".
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	if len(parts[0]) > 2 {
		return parts[0][:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
