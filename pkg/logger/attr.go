package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups non-nil errors under "errors". Returns an empty Attr if all are nil.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under "error". Returns an empty Attr for nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// PrincipalID records the principal under "principal_id". Never pass secrets or codes here.
func PrincipalID(id string) slog.Attr {
	return slog.String("principal_id", id)
}

func SessionID(id string) slog.Attr {
	return slog.String("session_id", id)
}

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// Component records the emitting package under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Outcome records a verification or session outcome category.
func Outcome(name string) slog.Attr {
	return slog.String("outcome", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
