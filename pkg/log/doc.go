/*
Package log provides structured logging for enrollcore using zerolog.

A single global Logger is configured once at startup with Init. Until then it is a
no-op logger, so library code and tests can log freely without setup.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithEnrollment(log.WithComponent("enrollment"), userID, courseID)
	logger.Info().
		Str(log.FieldEnrollmentID, id).
		Msg("Enrollment committed")

WithComponent tags a logger with component=<name>; WithEnrollment adds the
user_id and course_id of the pair an operation works on. The Field* constants
name the remaining shared keys.

# Output

JSONOutput selects one JSON object per line, suitable for log shipping. The console
writer is meant for local development:

	2026-10-18T10:00:00Z INF Enrollment committed component=enrollment course_id=c1 user_id=u1

# Levels

debug, info, warn and error map to the zerolog levels of the same name. Unknown
values fall back to info. The level is applied globally via zerolog.SetGlobalLevel.
*/
package log
