// Package server exposes the edit path and the notification-action entry
// points over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/sirupsen/logrus"

	"medication-reminders/internal/engine"
	"medication-reminders/internal/schedule"
	"medication-reminders/internal/store"
)

// Server routes HTTP requests to the engine and store.
type Server struct {
	store  *store.Store
	engine *engine.Engine
	log    *logrus.Logger
}

func New(st *store.Store, eng *engine.Engine, log *logrus.Logger) *Server {
	return &Server{store: st, engine: eng, log: log}
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Post("/medications", s.createMedication)
	r.Delete("/medications/{medicationID}", s.deleteMedication)
	r.Get("/medications/{medicationID}/schedules", s.listSchedules)
	r.Delete("/medications/{medicationID}/schedules", s.deleteSchedulesForMedication)

	r.Post("/schedules", s.createSchedule)
	r.Get("/schedules/{scheduleID}", s.getSchedule)
	r.Put("/schedules/{scheduleID}", s.updateSchedule)
	r.Delete("/schedules/{scheduleID}", s.deleteSchedule)
	r.Post("/schedules/{scheduleID}/actions", s.applyAction)

	r.Get("/intakes", s.listIntakes)

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: s.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("server listening on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) createMedication(w http.ResponseWriter, r *http.Request) {
	req := &struct {
		Name            string `json:"name"`
		DosagePerIntake int    `json:"dosagePerIntake"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "error parsing request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is empty")
		return
	}
	if req.DosagePerIntake < 1 {
		writeError(w, http.StatusBadRequest, "dosagePerIntake must be positive")
		return
	}
	med := &schedule.Medication{Name: req.Name, DosagePerIntake: req.DosagePerIntake}
	if err := s.store.InsertMedication(r.Context(), med); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to insert medication: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":              med.ID,
		"name":            med.Name,
		"dosagePerIntake": med.DosagePerIntake,
	})
}

// deleteMedication removes the medication and cascades to its schedules,
// cancelling their alarms.
func (s *Server) deleteMedication(w http.ResponseWriter, r *http.Request) {
	medicationID := chi.URLParam(r, "medicationID")
	if _, err := s.engine.DeleteForMedication(r.Context(), medicationID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete schedules: "+err.Error())
		return
	}
	err := s.store.DeleteMedication(r.Context(), medicationID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "medication not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete medication: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.decodeSchedule(w, r)
	if !ok {
		return
	}
	err := s.engine.CreateSchedule(r.Context(), sc)
	var cerr *store.ConstraintError
	if errors.As(err, &cerr) {
		writeError(w, http.StatusBadRequest, cerr.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create schedule: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, scheduleResponse(sc))
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetSchedule(r.Context(), chi.URLParam(r, "scheduleID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse(sc))
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.decodeSchedule(w, r)
	if !ok {
		return
	}
	sc.ID = chi.URLParam(r, "scheduleID")
	err := s.engine.ReplaceSchedule(r.Context(), sc)
	var cerr *store.ConstraintError
	switch {
	case errors.As(err, &cerr):
		writeError(w, http.StatusBadRequest, cerr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "schedule not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to update schedule: "+err.Error())
	default:
		writeJSON(w, http.StatusOK, scheduleResponse(sc))
	}
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	err := s.engine.DeleteSchedule(r.Context(), chi.URLParam(r, "scheduleID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete schedule: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	scs, err := s.store.ListForMedication(r.Context(), chi.URLParam(r, "medicationID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(scs))
	for _, sc := range scs {
		out = append(out, scheduleResponse(sc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteSchedulesForMedication(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.DeleteForMedication(r.Context(), chi.URLParam(r, "medicationID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// applyAction is the notification surface's callback: the user picked snooze
// or taken. A vanished schedule is not an error here, so the handler answers
// 204 either way.
func (s *Server) applyAction(w http.ResponseWriter, r *http.Request) {
	var a engine.Action
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "error parsing request body: "+err.Error())
		return
	}
	a.ScheduleID = chi.URLParam(r, "scheduleID")
	if a.Kind != engine.ActionSnooze && a.Kind != engine.ActionTaken {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", a.Kind))
		return
	}
	if err := s.engine.Apply(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to apply action: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listIntakes(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	evs, err := s.store.ListIntakes(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(evs))
	for _, ev := range evs {
		out = append(out, map[string]any{
			"id":             ev.ID,
			"medicationName": ev.MedicationName,
			"takenAt":        ev.TakenAt.Format(time.RFC3339),
			"dosageTaken":    ev.DosageTaken,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
