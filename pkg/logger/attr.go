package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". A nil error yields an empty Attr, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the subscriber identifier under "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func Plan(id string) slog.Attr {
	return slog.String("plan", id)
}

func Status(status string) slog.Attr {
	return slog.String("status", status)
}

func Metric(name string) slog.Attr {
	return slog.String("metric", name)
}

// Provider records the payment method kind handling a call.
func Provider(kind string) slog.Attr {
	return slog.String("provider", kind)
}

func TransactionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("transaction_id", id)
}

func Reference(ref string) slog.Attr {
	if ref == "" {
		return slog.Attr{}
	}
	return slog.String("reference", ref)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func TaskID(id string) slog.Attr {
	return slog.String("task_id", id)
}
