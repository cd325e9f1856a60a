package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"medication-reminders/internal/schedule"
)

type scheduleRequest struct {
	MedicationID string   `json:"medicationId"`
	CycleType    string   `json:"cycleType"`
	TimesOfDay   []string `json:"timesOfDay"`
	DaysOfWeek   []string `json:"daysOfWeek,omitempty"`
	DayOfMonth   int      `json:"dayOfMonth,omitempty"`
	IntervalDays int      `json:"intervalDays,omitempty"`
	StartDate    string   `json:"startDate,omitempty"`
	Enabled      *bool    `json:"enabled,omitempty"`
}

// decodeSchedule parses and translates a schedule request body, writing a 400
// response itself when the body is malformed.
func (s *Server) decodeSchedule(w http.ResponseWriter, r *http.Request) (*schedule.Schedule, bool) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "error parsing request body: "+err.Error())
		return nil, false
	}

	cycle, err := schedule.ParseCycleType(req.CycleType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	var times schedule.TimesOfDay
	for _, item := range req.TimesOfDay {
		t, err := schedule.ParseTimeOfDay(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		times = append(times, t)
	}

	var mask schedule.WeekdayMask
	for _, name := range req.DaysOfWeek {
		d, ok := schedule.ParseWeekday(name)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown weekday "+name)
			return nil, false
		}
		mask = mask.With(d)
	}

	var startDate time.Time
	if req.StartDate != "" {
		startDate, err = parseInstant(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to parse startDate: "+err.Error())
			return nil, false
		}
	} else if cycle == schedule.CycleEveryXDays {
		// The anchor defaults to today so the first qualifying day is today.
		startDate = time.Now()
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	return &schedule.Schedule{
		MedicationID: req.MedicationID,
		CycleType:    cycle,
		Times:        times.Normalized(),
		DaysOfWeek:   mask,
		DayOfMonth:   req.DayOfMonth,
		IntervalDays: req.IntervalDays,
		StartDate:    startDate,
		Enabled:      enabled,
	}, true
}

// parseInstant accepts RFC 3339, or "+duration" for an instant relative to
// now.
func parseInstant(s string) (time.Time, error) {
	if strings.HasPrefix(s, "+") {
		dur, err := time.ParseDuration(s[1:])
		if err != nil {
			return time.Time{}, err
		}
		return time.Now().Add(dur), nil
	}
	return time.Parse(time.RFC3339, s)
}

func scheduleResponse(sc *schedule.Schedule) map[string]any {
	times := make([]string, len(sc.Times))
	for i, t := range sc.Times {
		times[i] = t.String()
	}
	days := make([]string, 0, 7)
	for _, d := range sc.DaysOfWeek.Days() {
		days = append(days, strings.ToLower(d.String()))
	}
	out := map[string]any{
		"id":           sc.ID,
		"medicationId": sc.MedicationID,
		"cycleType":    sc.CycleType.String(),
		"timesOfDay":   times,
		"enabled":      sc.Enabled,
	}
	switch sc.CycleType {
	case schedule.CycleWeekly:
		out["daysOfWeek"] = days
	case schedule.CycleMonthly:
		out["dayOfMonth"] = sc.DayOfMonth
	case schedule.CycleEveryXDays:
		out["intervalDays"] = sc.IntervalDays
		out["startDate"] = sc.StartDate.Format(time.RFC3339)
	}
	if !sc.NextTriggerAt.IsZero() {
		out["nextTriggerAt"] = sc.NextTriggerAt.Format(time.RFC3339)
	}
	return out
}
