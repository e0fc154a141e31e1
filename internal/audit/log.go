// Package audit records security relevant events as structured log lines and,
// when a publisher is installed, as messages on a broker.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"resturant.app/internal/auth"
	"resturant.app/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Publisher forwards audit events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event string, body []byte) error
}

var (
	pubMu     sync.RWMutex
	publisher Publisher
)

// SetPublisher installs p for subsequent events. nil disables publishing.
func SetPublisher(p Publisher) {
	pubMu.Lock()
	publisher = p
	pubMu.Unlock()
}

func currentPublisher() Publisher {
	pubMu.RLock()
	defer pubMu.RUnlock()
	return publisher
}

// Event is the audit record as published.
type Event struct {
	Time      time.Time      `json:"ts"`
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// LogEvent writes an audit entry enriched with request and user context.
// Publishing failures are logged and do not fail the call.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	ev := Event{
		Time:      time.Now().UTC(),
		Type:      "audit",
		Event:     event,
		RequestID: RequestIDFromContext(ctx),
		Fields:    make(map[string]any, len(fields)),
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		ev.UserID = userID
	}
	for k, v := range fields {
		ev.Fields[k] = v
	}

	entry := obs.Logger().WithFields(logrus.Fields{
		"type":   ev.Type,
		"event":  ev.Event,
		"fields": ev.Fields,
	})
	if ev.RequestID != "" {
		entry = entry.WithField("request_id", ev.RequestID)
	}
	if ev.UserID != "" {
		entry = entry.WithField("user_id", ev.UserID)
	}
	entry.Info("audit")

	if p := currentPublisher(); p != nil {
		body, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := p.Publish(ctx, event, body); err != nil {
			entry.WithError(err).Warn("audit publish failed")
		}
	}
	return nil
}
