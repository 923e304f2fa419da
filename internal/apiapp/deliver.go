package apiapp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/delivery"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/logger"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/roster"
)

func (s *server) finalShiftImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	year, month, err := parseMonthQuery(r)
	if err != nil {
		writeDomainError(w, err, "unable to render schedule")
		return
	}
	png, err := s.publisher.Image(r.Context(), year, month)
	if err != nil {
		writeDomainError(w, err, "unable to render schedule")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Content-Disposition", `inline; filename="`+delivery.ImageFileName(year, month)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *server) decodeMonth(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	var req monthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return 0, 0, false
	}
	if err := models.ValidateMonth(req.Year, req.Month); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return req.Year, req.Month, true
}

func (s *server) sendWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	year, month, ok := s.decodeMonth(w, r)
	if !ok {
		return
	}
	if err := s.publisher.SendToWebhook(r.Context(), year, month); err != nil {
		writeDomainError(w, err, "unable to send schedule image")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "month": models.MonthPrefix(year, month)})
}

func (s *server) sendSheet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	year, month, ok := s.decodeMonth(w, r)
	if !ok {
		return
	}
	report, err := s.publisher.SendToSheet(r.Context(), year, month)
	if err != nil {
		writeDomainError(w, err, "unable to write schedule sheet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type upsertUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IsAdmin     bool   `json:"isAdmin"`
}

func (s *server) usersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.store.ListAllowedUsers(r.Context())
		if err != nil {
			writeDomainError(w, err, "unable to list users")
			return
		}
		if users == nil {
			users = []models.AllowedUser{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req upsertUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		u := models.AllowedUser{Email: strings.TrimSpace(req.Email), DisplayName: req.DisplayName, IsAdmin: req.IsAdmin}
		if !u.IsAdmin && strings.EqualFold(u.Email, callerFromContext(r.Context()).Email) {
			writeError(w, http.StatusBadRequest, "you cannot remove your own admin rights")
			return
		}
		if err := s.store.PutAllowedUser(r.Context(), u); err != nil {
			writeDomainError(w, err, "unable to save user")
			return
		}
		writeJSON(w, http.StatusCreated, u)
	case http.MethodDelete:
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			writeError(w, http.StatusBadRequest, "email is required")
			return
		}
		if strings.EqualFold(email, callerFromContext(r.Context()).Email) {
			writeError(w, http.StatusBadRequest, "you cannot remove yourself")
			return
		}
		if err := s.store.DeleteAllowedUser(r.Context(), email); err != nil {
			writeDomainError(w, err, "unable to delete user")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) importUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "roster file is required")
		return
	}
	defer file.Close()

	result, err := roster.Import(r.Context(), s.store, file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to import roster: "+err.Error())
		return
	}
	logger.Info("roster imported", "file", header.Filename, "users", len(result.Users), "skipped", len(result.Skipped))
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": len(result.Users),
		"skipped":  result.Skipped,
	})
}
