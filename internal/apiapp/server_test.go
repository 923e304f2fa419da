package apiapp

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/palette"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/security"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/store"
	"github.com/xuri/excelize/v2"
	"golang.org/x/image/font/gofont/goregular"
)

const testSecret = "test-identity-secret-with-some-length"

type testEnv struct {
	handler  http.Handler
	verifier *security.Verifier
	hookHits *atomic.Int32
}

func newTestEnv(t *testing.T, hookStatus int) *testEnv {
	t.Helper()
	hits := &atomic.Int32{}
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(hookStatus)
	}))
	t.Cleanup(hook.Close)

	ctx := context.Background()
	st, publisher, err := Wire(ctx, Config{
		DBPath:      filepath.Join(t.TempDir(), "api.db"),
		WebhookURL:  hook.URL,
		AdminEmails: []string{"boss@x.com"},
	})
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.PutAllowedUser(ctx, models.AllowedUser{Email: "a@x.com", DisplayName: "Alice"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	verifier, err := security.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	s := newServer(st, verifier, publisher)
	s.now = func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) }
	return &testEnv{handler: s.routes(), verifier: verifier, hookHits: hits}
}

func (e *testEnv) do(t *testing.T, method, path, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if email != "" {
		token, err := e.verifier.IssueToken(email, "", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHealthNeedsNoToken(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	rr := env.do(t, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("security headers missing")
	}
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	tests := []struct {
		name   string
		path   string
		email  string
		status int
	}{
		{name: "no token", path: "/api/me", status: http.StatusUnauthorized},
		{name: "stranger", path: "/api/me", email: "nobody@x.com", status: http.StatusForbidden},
		{name: "staff", path: "/api/me", email: "a@x.com", status: http.StatusOK},
		{name: "staff on admin route", path: "/api/admin/users", email: "a@x.com", status: http.StatusForbidden},
		{name: "admin on admin route", path: "/api/admin/users", email: "boss@x.com", status: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tc.path, tc.email, nil)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}

	rr := env.do(t, http.MethodGet, "/api/me", "boss@x.com", nil)
	var me caller
	decodeBody(t, rr, &me)
	if !me.IsAdmin || me.Email != "boss@x.com" {
		t.Fatalf("unexpected caller %+v", me)
	}
}

func TestSubmitConfirmAndPublish(t *testing.T) {
	env := newTestEnv(t, http.StatusNoContent)

	rr := env.do(t, http.MethodPost, "/api/shifts", "a@x.com", map[string]any{
		"date":  "2025-05-10",
		"times": []string{"13:00", "13:30", "18:00"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var submitted shiftView
	decodeBody(t, rr, &submitted)
	if submitted.DisplayName != "Alice" || submitted.Summary != "13:00 - 14:00, 18:00 - 18:30" {
		t.Fatalf("unexpected submission %+v", submitted)
	}
	if want := palette.Calendar("a@x.com").String(); submitted.Color != want {
		t.Fatalf("expected color %q, got %q", want, submitted.Color)
	}

	if rr := env.do(t, http.MethodPost, "/api/shifts", "a@x.com", map[string]any{"date": "2025-05-10", "times": []string{"25:00"}}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown slot, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/final-shifts", "a@x.com", map[string]string{"shiftId": submitted.ID}); rr.Code != http.StatusForbidden {
		t.Fatalf("staff must not confirm shifts, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/final-shifts", "boss@x.com", map[string]string{"shiftId": submitted.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("confirm: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/final-shifts?year=2025&month=5", "a@x.com", nil)
	var listing struct {
		Shifts []shiftView `json:"shifts"`
	}
	decodeBody(t, rr, &listing)
	if len(listing.Shifts) != 1 || listing.Shifts[0].ConfirmedBy != "boss@x.com" || listing.Shifts[0].Color != submitted.Color {
		t.Fatalf("unexpected final shifts %+v", listing.Shifts)
	}

	rr = env.do(t, http.MethodGet, "/api/final-shifts/image?year=2025&month=5", "a@x.com", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("image: got %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	img, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if img.Bounds().Dx() != 900 {
		t.Fatalf("unexpected image width %d", img.Bounds().Dx())
	}

	rr = env.do(t, http.MethodPost, "/api/final-shifts/send-webhook", "boss@x.com", map[string]int{"year": 2025, "month": 5})
	if rr.Code != http.StatusOK || env.hookHits.Load() != 1 {
		t.Fatalf("send webhook: got %d with %d hits", rr.Code, env.hookHits.Load())
	}
}

func TestPublishErrorMapping(t *testing.T) {
	env := newTestEnv(t, http.StatusInternalServerError)

	tests := []struct {
		name   string
		body   map[string]int
		status int
	}{
		{name: "bad month", body: map[string]int{"year": 2025, "month": 13}, status: http.StatusBadRequest},
		{name: "empty month", body: map[string]int{"year": 2025, "month": 6}, status: http.StatusNotFound},
	}
	for _, tc := range tests {
		rr := env.do(t, http.MethodPost, "/api/final-shifts/send-webhook", "boss@x.com", tc.body)
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, rr.Code)
		}
	}
	if env.hookHits.Load() != 0 {
		t.Fatalf("webhook must not be called for rejected months")
	}

	rr := env.do(t, http.MethodPost, "/api/shifts", "a@x.com", map[string]any{"date": "2025-06-02", "times": []string{"12:00"}})
	var rec shiftView
	decodeBody(t, rr, &rec)
	if rr := env.do(t, http.MethodPost, "/api/final-shifts", "boss@x.com", map[string]string{"shiftId": rec.ID}); rr.Code != http.StatusCreated {
		t.Fatalf("confirm: %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/api/final-shifts/send-webhook", "boss@x.com", map[string]int{"year": 2025, "month": 6})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when the webhook fails, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/final-shifts/send-sheet", "boss@x.com", map[string]int{"year": 2025, "month": 6})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a workbook, got %d", rr.Code)
	}
}

func TestRequestedShiftVolunteer(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rr := env.do(t, http.MethodPost, "/api/requested-shifts", "boss@x.com", map[string]any{
		"date":  "2025-05-20",
		"times": []string{"17:00", "17:30"},
		"memo":  "evening cover",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create request: %d %s", rr.Code, rr.Body.String())
	}
	var req models.RequestedShift
	decodeBody(t, rr, &req)

	rr = env.do(t, http.MethodGet, "/api/requested-shifts", "a@x.com", nil)
	var listing struct {
		Requests []models.RequestedShift `json:"requests"`
	}
	decodeBody(t, rr, &listing)
	if len(listing.Requests) != 1 {
		t.Fatalf("expected one open request, got %+v", listing.Requests)
	}

	rr = env.do(t, http.MethodPost, "/api/requested-shifts/"+req.ID+"/volunteer", "a@x.com", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("volunteer: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/shifts", "a@x.com", nil)
	var mine struct {
		Shifts []shiftView `json:"shifts"`
	}
	decodeBody(t, rr, &mine)
	if len(mine.Shifts) != 1 || mine.Shifts[0].Summary != "17:00 - 18:00" {
		t.Fatalf("unexpected shifts after volunteering %+v", mine.Shifts)
	}

	rr = env.do(t, http.MethodPost, "/api/requested-shifts/snapshot", "boss@x.com", nil)
	var snap struct {
		Copied int `json:"copied"`
	}
	decodeBody(t, rr, &snap)
	if snap.Copied != 1 {
		t.Fatalf("expected 1 copied request, got %d", snap.Copied)
	}

	if rr := env.do(t, http.MethodDelete, "/api/requested-shifts/"+req.ID, "a@x.com", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("staff must not delete requests, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/requested-shifts/"+req.ID, "boss@x.com", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete request: %d", rr.Code)
	}
}

func TestDeleteShiftRequiresOwner(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rr := env.do(t, http.MethodPost, "/api/shifts", "boss@x.com", map[string]any{"date": "2025-05-10", "times": []string{"11:00"}})
	var rec shiftView
	decodeBody(t, rr, &rec)

	if rr := env.do(t, http.MethodDelete, "/api/shifts/"+rec.ID, "a@x.com", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's shift, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/shifts/"+rec.ID, "boss@x.com", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for the owner, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/shifts/"+rec.ID, "boss@x.com", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after deletion, got %d", rr.Code)
	}
}

func TestImportUsers(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellStr(sheet, "A1", "Email")
	_ = f.SetCellStr(sheet, "B1", "Name")
	_ = f.SetCellStr(sheet, "A2", "c@x.com")
	_ = f.SetCellStr(sheet, "B2", "Carol")
	xlsx, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("build roster: %v", err)
	}
	_ = f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "staff.xlsx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(xlsx.Bytes())
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	token, _ := env.verifier.IssueToken("boss@x.com", "", time.Hour)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"imported":1`) {
		t.Fatalf("import: %d %s", rr.Code, rr.Body.String())
	}

	if rr := env.do(t, http.MethodGet, "/api/me", "c@x.com", nil); rr.Code != http.StatusOK {
		t.Fatalf("imported user should be allowed, got %d", rr.Code)
	}
}

func TestAdminCannotDemoteSelf(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rr := env.do(t, http.MethodPost, "/api/admin/users", "boss@x.com", map[string]any{"email": " BOSS@x.com", "displayName": "Boss", "isAdmin": false})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self demotion, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/me", "boss@x.com", nil)
	var me caller
	decodeBody(t, rr, &me)
	if !me.IsAdmin {
		t.Fatalf("admin rights were removed: %+v", me)
	}

	if rr := env.do(t, http.MethodPost, "/api/admin/users", "boss@x.com", map[string]any{"email": "boss@x.com", "displayName": "Boss", "isAdmin": true}); rr.Code != http.StatusCreated {
		t.Fatalf("expected an admin to rename themselves, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/admin/users", "boss@x.com", map[string]any{"email": "a@x.com", "displayName": "Alice", "isAdmin": false}); rr.Code != http.StatusCreated {
		t.Fatalf("expected other users to be editable, got %d", rr.Code)
	}
}

func TestWireLoadsScheduleFont(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	if _, _, err := Wire(ctx, Config{DBPath: filepath.Join(dir, "missing.db"), FontPath: filepath.Join(dir, "missing.ttf")}); err == nil {
		t.Fatalf("expected an error for a missing font")
	}

	fontPath := filepath.Join(dir, "regular.ttf")
	if err := os.WriteFile(fontPath, goregular.TTF, 0o644); err != nil {
		t.Fatalf("write font: %v", err)
	}
	st, publisher, err := Wire(ctx, Config{DBPath: filepath.Join(dir, "font.db"), FontPath: fontPath})
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if _, err := st.Put(ctx, store.FinalShifts, models.ShiftRecord{Date: "2025-05-10", User: "y@x.com", DisplayName: "山田", Times: models.Slots{"13:00"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	data, err := publisher.Image(ctx, 2025, 5)
	if err != nil {
		t.Fatalf("image: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode image: %v", err)
	}
}
