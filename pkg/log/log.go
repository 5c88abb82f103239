package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger. It discards everything until Init runs.
var Logger = zerolog.Nop()

// Field names shared by every component
const (
	FieldComponent    = "component"
	FieldUserID       = "user_id"
	FieldCourseID     = "course_id"
	FieldEnrollmentID = "enrollment_id"
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the global logger. Unknown levels fall back to info.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent creates a child logger tagged with the component name
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str(FieldComponent, component).Logger()
}

// WithEnrollment scopes l to one (user, course) pair
func WithEnrollment(l zerolog.Logger, userID, courseID string) zerolog.Logger {
	return l.With().Str(FieldUserID, userID).Str(FieldCourseID, courseID).Logger()
}
