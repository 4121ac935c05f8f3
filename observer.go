package rw

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/GoCodeAlone/rw/lifecycle"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience
type CloudEvent = cloudevents.Event

// Event types emitted by an Application.
const (
	EventTypePhaseStarted   = "rw.lifecycle.phase.started"
	EventTypePhaseCompleted = "rw.lifecycle.phase.completed"
	EventTypePhaseFailed    = "rw.lifecycle.phase.failed"
	EventTypeConfigChanged  = "rw.config.changed"
	EventTypeConfigInvalid  = "rw.config.invalid"
)

// EventObserver receives the CloudEvents emitted by an Application. It is
// called synchronously, so it should hand off slow work.
type EventObserver func(ev CloudEvent)

// NewCloudEvent creates a CloudEvent with a time-ordered ID. Data that
// cannot be encoded as JSON is dropped.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) CloudEvent {
	ev := cloudevents.NewEvent()
	ev.SetID(newEventID())
	ev.SetSource(source)
	ev.SetType(eventType)
	ev.SetTime(time.Now())
	ev.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = ev.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		ev.SetExtension(key, value)
	}
	return ev
}

// ValidateCloudEvent checks ev against the CloudEvents rules.
func ValidateCloudEvent(ev CloudEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return nil
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// phaseEvent converts a lifecycle record into a CloudEvent.
func phaseEvent(source string, rec lifecycle.Record) CloudEvent {
	typ := EventTypePhaseStarted
	switch rec.Status {
	case lifecycle.StatusCompleted:
		typ = EventTypePhaseCompleted
	case lifecycle.StatusFailed:
		typ = EventTypePhaseFailed
	}
	return NewCloudEvent(typ, source, rec, map[string]any{
		"phase": string(rec.Phase),
		"runid": rec.RunID,
	})
}
