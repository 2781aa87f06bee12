package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumacare/visit-scheduling/internal/schedule"
	"github.com/lumacare/visit-scheduling/internal/visit"
)

func createVisitHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateVisitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}

		params := schedule.CreateVisitParams{
			ClientID:    clientID,
			Start:       req.ScheduledStart,
			End:         req.ScheduledEnd,
			ServiceType: req.ServiceType,
		}

		if req.CaregiverID != nil {
			caregiverID, err := uuid.Parse(*req.CaregiverID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_caregiver_id", "caregiver_id must be a valid UUID")
				return
			}
			params.CaregiverID = &caregiverID
		}

		created, err := svc.CreateVisit(r.Context(), params)
		if err != nil {
			// On assignment conflict the visit was still created; return it
			// alongside the conflict so the caller can act on both.
			if ce, ok := schedule.AsConflict(err); ok && created != nil {
				resp := toVisitResponse(created)
				writeJSON(w, http.StatusConflict, ConflictResponse{
					Error:               "schedule_conflict",
					Details:             ce.Error(),
					ConflictingVisitIDs: ce.ConflictingVisitIDs,
					Visit:               &resp,
				})
				return
			}
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toVisitResponse(created))
	}
}

func getVisitHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseVisitID(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetVisit(r.Context(), id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitDetailResponse(detail))
	}
}

func listVisitsHandler(svc *schedule.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, ok := parseDateRange(w, r, loc)
		if !ok {
			return
		}

		var filter visit.ListFilter

		if raw := r.URL.Query().Get("caregiver_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_caregiver_id", "caregiver_id must be a valid UUID")
				return
			}
			filter.CaregiverID = &id
		}
		if raw := r.URL.Query().Get("client_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
				return
			}
			filter.ClientID = &id
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := visit.Status(raw)
			filter.Status = &status
		}

		visits, err := svc.ListVisits(r.Context(), start, end, filter)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := make([]VisitResponse, 0, len(visits))
		for i := range visits {
			resp = append(resp, toVisitDetailResponse(&visits[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func assignHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseVisitID(w, r)
		if !ok {
			return
		}

		caregiverID, ok := parseAssignBody(w, r)
		if !ok {
			return
		}

		updated, err := svc.Assign(r.Context(), id, caregiverID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitResponse(updated))
	}
}

func unassignHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseVisitID(w, r)
		if !ok {
			return
		}

		updated, err := svc.Unassign(r.Context(), id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitResponse(updated))
	}
}

func reassignHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseVisitID(w, r)
		if !ok {
			return
		}

		caregiverID, ok := parseAssignBody(w, r)
		if !ok {
			return
		}

		updated, err := svc.Reassign(r.Context(), id, caregiverID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitResponse(updated))
	}
}

func rescheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseVisitID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := svc.Reschedule(r.Context(), id, req.ScheduledStart, req.ScheduledEnd)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitResponse(updated))
	}
}

func cancelVisitHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseVisitID(w, r)
		if !ok {
			return
		}

		updated, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitResponse(updated))
	}
}

func getWeekHandler(svc *schedule.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := time.Now().In(loc)
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			date = parsed
		}

		layout, err := svc.GetWeek(r.Context(), date)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, layout)
	}
}

func listUnassignedHandler(svc *schedule.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, ok := parseDateRange(w, r, loc)
		if !ok {
			return
		}

		visits, err := svc.ListUnassigned(r.Context(), start, end)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := make([]VisitResponse, 0, len(visits))
		for i := range visits {
			resp = append(resp, toVisitDetailResponse(&visits[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func unassignedCountHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours := 48
		if raw := r.URL.Query().Get("within_hours"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_within_hours", "within_hours must be a positive integer")
				return
			}
			hours = n
		}

		count, err := svc.CountUnassignedWithin(r.Context(), time.Duration(hours)*time.Hour)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, UnassignedCountResponse{
			Count:       count,
			WithinHours: hours,
		})
	}
}

// Helpers

func parseVisitID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseAssignBody(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return uuid.Nil, false
	}

	caregiverID, err := uuid.Parse(req.CaregiverID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_caregiver_id", "caregiver_id must be a valid UUID")
		return uuid.Nil, false
	}

	return caregiverID, true
}

// parseDateRange reads start_date/end_date calendar dates and widens them to
// [start of start_date, end of end_date) in the scheduling timezone.
func parseDateRange(w http.ResponseWriter, r *http.Request, loc *time.Location) (time.Time, time.Time, bool) {
	startRaw := r.URL.Query().Get("start_date")
	endRaw := r.URL.Query().Get("end_date")
	if startRaw == "" || endRaw == "" {
		writeError(w, http.StatusBadRequest, "missing_date_range", "start_date and end_date are required")
		return time.Time{}, time.Time{}, false
	}

	start, err := time.ParseInLocation("2006-01-02", startRaw, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}

	end, err := time.ParseInLocation("2006-01-02", endRaw, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_date", "end_date must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}

	return start, end.AddDate(0, 0, 1), true
}

func handleScheduleError(w http.ResponseWriter, err error) {
	if ce, ok := schedule.AsConflict(err); ok {
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:               "schedule_conflict",
			Details:             ce.Error(),
			ConflictingVisitIDs: ce.ConflictingVisitIDs,
		})
		return
	}

	switch {
	case errors.Is(err, visit.ErrVisitNotFound):
		writeError(w, http.StatusNotFound, "visit_not_found", err.Error())
	case errors.Is(err, visit.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", err.Error())
	case errors.Is(err, visit.ErrCaregiverNotFound):
		writeError(w, http.StatusNotFound, "caregiver_not_found", err.Error())
	case errors.Is(err, visit.ErrInvalidTimeRange):
		writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
	case errors.Is(err, schedule.ErrVisitCancelled):
		writeError(w, http.StatusConflict, "visit_cancelled", err.Error())
	case errors.Is(err, schedule.ErrVisitCompleted):
		writeError(w, http.StatusConflict, "visit_completed", err.Error())
	case errors.Is(err, visit.ErrStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, schedule.ErrSchedulingContended):
		writeError(w, http.StatusConflict, "schedule_contended", "schedule is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
