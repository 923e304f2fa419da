package apiapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/delivery"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/logger"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/publish"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/shiftimage"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/store"
)

type monthRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// pathID returns the single path segment after prefix, or "" when the path
// has none or more than one.
func pathID(path, prefix string) string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

func parseMonthQuery(r *http.Request) (int, int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: year", models.ErrInvalidMonth)
	}
	month, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month", models.ErrInvalidMonth)
	}
	if err := models.ValidateMonth(year, month); err != nil {
		return 0, 0, err
	}
	return year, month, nil
}

// writeDomainError maps package sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	var statusErr *delivery.StatusError
	switch {
	case errors.Is(err, models.ErrInvalidMonth), errors.Is(err, store.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, publish.ErrNoShifts), errors.Is(err, delivery.ErrSheetNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, delivery.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, shiftimage.ErrTooManyRows):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &statusErr):
		logger.Warn("delivery rejected", "status", statusErr.StatusCode, "err", err)
		writeError(w, http.StatusBadGateway, "delivery target rejected the upload")
	default:
		logger.Error(fallback, "err", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
