package domain

import "time"

// AlertEvent - одноразовое событие для вебхука, живет только в рамках одного запроса.
type AlertEvent struct {
	Timestamp      time.Time
	RequestText    string
	Kind           FailureKind
	Detail         string
	UpstreamStatus int
}

func NewAlertEvent(requestText string, f *Failure, now time.Time) AlertEvent {
	return AlertEvent{
		Timestamp:      now.UTC(),
		RequestText:    requestText,
		Kind:           f.Kind,
		Detail:         f.Detail,
		UpstreamStatus: f.UpstreamStatus,
	}
}
