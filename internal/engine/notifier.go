package engine

import "github.com/sirupsen/logrus"

// ActionKind names a user-selectable notification action.
type ActionKind string

const (
	ActionSnooze ActionKind = "snooze"
	ActionTaken  ActionKind = "taken"
)

// Action is the typed payload the notification surface delivers when the user
// picks an action. The engine is its single subscriber.
type Action struct {
	Kind         ActionKind `json:"action"`
	ScheduleID   string     `json:"scheduleId"`
	MedicationID string     `json:"medicationId,omitempty"`
}

// Notification is what the engine asks the platform to show when a reminder
// fires.
type Notification struct {
	ScheduleID   string
	MedicationID string
	Title        string
	Body         string
	Actions      []ActionKind
}

// Notifier is the notification-surface seam. Showing is assumed reliable once
// invoked; action selection comes back through Engine.Apply.
type Notifier interface {
	Show(n Notification)
}

// LogNotifier writes notifications to the log. It is the default surface for
// the daemon; a real platform binding replaces it at wiring time.
type LogNotifier struct {
	Log *logrus.Logger
}

func (l *LogNotifier) Show(n Notification) {
	l.Log.WithFields(logrus.Fields{
		"schedule_id":   n.ScheduleID,
		"medication_id": n.MedicationID,
		"actions":       n.Actions,
	}).Infof("%s: %s", n.Title, n.Body)
}
