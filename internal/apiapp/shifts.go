package apiapp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/palette"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/store"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/timeslot"
)

type submitShiftRequest struct {
	Date  string       `json:"date"`
	Times models.Slots `json:"times"`
	Memo  string       `json:"memo"`
}

type confirmShiftRequest struct {
	ShiftID string `json:"shiftId"`
}

type createRequestedShiftRequest struct {
	Date  string       `json:"date"`
	Times models.Slots `json:"times"`
	Memo  string       `json:"memo"`
}

type snapshotRequest struct {
	From string `json:"from"`
}

// shiftView adds the grouped range text shown in lists and the calendar
// tile color of the shift's owner.
type shiftView struct {
	models.ShiftRecord
	Summary string `json:"summary"`
	Color   string `json:"color"`
}

func viewOf(rec models.ShiftRecord) shiftView {
	return shiftView{
		ShiftRecord: rec,
		Summary:     timeslot.Join(rec.Times),
		Color:       palette.Calendar(palette.Identifier(rec.User, rec.DisplayName)).String(),
	}
}

func viewsOf(records []models.ShiftRecord) []shiftView {
	views := make([]shiftView, 0, len(records))
	for _, rec := range records {
		views = append(views, viewOf(rec))
	}
	return views
}

func validDate(date string) bool {
	_, err := time.Parse(dateLayout, date)
	return err == nil
}

// validateSlots rejects labels that are not on the selectable grid.
func validateSlots(times models.Slots) error {
	grid := timeslot.Grid(timeslot.CalendarStartHour, timeslot.CalendarEndHour)
	for _, label := range times {
		found := false
		for _, g := range grid {
			if g == label {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown time slot %q", store.ErrInvalidRecord, label)
		}
	}
	return nil
}

func (s *server) shiftsHandler(w http.ResponseWriter, r *http.Request) {
	c := callerFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if date != "" && !validDate(date) {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		filter := store.Filter{Date: date}
		if date == "" {
			filter.From = s.today()
		}
		if !c.IsAdmin {
			filter.User = c.Email
		}
		records, err := s.store.List(r.Context(), store.Shifts, filter)
		if err != nil {
			writeDomainError(w, err, "unable to list shifts")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shifts": viewsOf(records)})
	case http.MethodPost:
		var req submitShiftRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Date = strings.TrimSpace(req.Date)
		if !validDate(req.Date) {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		if err := validateSlots(req.Times); err != nil {
			writeDomainError(w, err, "unable to submit shift")
			return
		}
		rec, err := s.store.SubmitAvailability(r.Context(), models.ShiftRecord{
			Date:        req.Date,
			User:        c.Email,
			DisplayName: c.DisplayName,
			Times:       req.Times,
			Memo:        strings.TrimSpace(req.Memo),
		})
		if err != nil {
			writeDomainError(w, err, "unable to submit shift")
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(rec))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) shiftByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := pathID(r.URL.Path, "/api/shifts/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	c := callerFromContext(r.Context())
	rec, err := s.store.Get(r.Context(), store.Shifts, id)
	if err != nil {
		writeDomainError(w, err, "unable to delete shift")
		return
	}
	if rec.User != c.Email && !c.IsAdmin {
		writeError(w, http.StatusForbidden, "only the owner can delete this shift")
		return
	}
	if err := s.store.Delete(r.Context(), store.Shifts, id); err != nil {
		writeDomainError(w, err, "unable to delete shift")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) finalShiftsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		year, month, err := parseMonthQuery(r)
		if err != nil {
			writeDomainError(w, err, "unable to list final shifts")
			return
		}
		records, err := s.store.MonthRecords(r.Context(), store.FinalShifts, year, month)
		if err != nil {
			writeDomainError(w, err, "unable to list final shifts")
			return
		}
		batch, err := models.NewMonthlyBatch(year, month, records)
		if err != nil {
			writeDomainError(w, err, "unable to list final shifts")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"year":   year,
			"month":  month,
			"shifts": viewsOf(batch.Records),
		})
	case http.MethodPost:
		c := callerFromContext(r.Context())
		if !c.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		var req confirmShiftRequest
		if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.ShiftID) == "" {
			writeError(w, http.StatusBadRequest, "shiftId is required")
			return
		}
		rec, err := s.store.Confirm(r.Context(), strings.TrimSpace(req.ShiftID), c.Email, s.now())
		if err != nil {
			writeDomainError(w, err, "unable to confirm shift")
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(rec))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) finalShiftByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := pathID(r.URL.Path, "/api/final-shifts/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.store.Delete(r.Context(), store.FinalShifts, id); err != nil {
		writeDomainError(w, err, "unable to delete final shift")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) requestedShiftsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		requests, err := s.store.ListRequests(r.Context(), store.RequestedShifts, s.today())
		if err != nil {
			writeDomainError(w, err, "unable to list requested shifts")
			return
		}
		if requests == nil {
			requests = []models.RequestedShift{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
	case http.MethodPost:
		if !callerFromContext(r.Context()).IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		var req createRequestedShiftRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Date = strings.TrimSpace(req.Date)
		if !validDate(req.Date) {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		if len(req.Times) == 0 {
			writeError(w, http.StatusBadRequest, "times are required")
			return
		}
		if err := validateSlots(req.Times); err != nil {
			writeDomainError(w, err, "unable to create requested shift")
			return
		}
		created, err := s.store.PutRequest(r.Context(), models.RequestedShift{
			Date:  req.Date,
			Times: req.Times,
			Memo:  strings.TrimSpace(req.Memo),
		})
		if err != nil {
			writeDomainError(w, err, "unable to create requested shift")
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// requestedShiftByIDHandler serves DELETE /api/requested-shifts/{id} and
// POST /api/requested-shifts/{id}/volunteer.
func (s *server) requestedShiftByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/requested-shifts/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	parts := strings.Split(rest, "/")
	c := callerFromContext(r.Context())

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if !c.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		if err := s.store.Delete(r.Context(), store.RequestedShifts, parts[0]); err != nil {
			writeDomainError(w, err, "unable to delete requested shift")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "volunteer" && r.Method == http.MethodPost:
		rec, err := s.store.Volunteer(r.Context(), parts[0], c.Email, c.DisplayName)
		if err != nil {
			writeDomainError(w, err, "unable to volunteer")
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(rec))
	case len(parts) == 1, len(parts) == 2 && parts[1] == "volunteer":
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *server) snapshotRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req snapshotRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	from := strings.TrimSpace(req.From)
	if from == "" {
		from = s.today()
	}
	if !validDate(from) {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	n, err := s.store.SnapshotRequests(r.Context(), from)
	if err != nil {
		writeDomainError(w, err, "unable to snapshot requests")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"copied": n, "from": from})
}
