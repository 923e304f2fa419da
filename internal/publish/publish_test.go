package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/delivery"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/shiftimage"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/store"
)

type fakeSource struct {
	records    []models.ShiftRecord
	collection string
}

func (f *fakeSource) MonthRecords(ctx context.Context, collection string, year, month int) ([]models.ShiftRecord, error) {
	f.collection = collection
	return f.records, nil
}

type fakeImageSink struct {
	fileName string
	caption  string
	png      []byte
	err      error
}

func (f *fakeImageSink) SendImage(ctx context.Context, fileName, caption string, png []byte) error {
	f.fileName, f.caption, f.png = fileName, caption, png
	return f.err
}

type fakeSheetSink struct {
	batch models.MonthlyBatch
}

func (f *fakeSheetSink) WriteMonth(ctx context.Context, batch models.MonthlyBatch) (delivery.SheetReport, error) {
	f.batch = batch
	return delivery.SheetReport{Sheet: "202505"}, nil
}

func mayRecords() []models.ShiftRecord {
	return []models.ShiftRecord{
		{ID: "1", Date: "2025-05-10", User: "a@x.com", DisplayName: "Alice", Times: models.Slots{"11:00"}},
		{ID: "2", Date: "2025-06-01", User: "b@x.com", Times: models.Slots{"12:00"}},
	}
}

func newTestService(source Source, image ImageSink, sheet SheetSink) *Service {
	s := NewService(source, image, sheet)
	s.render = func(batch models.MonthlyBatch) ([]byte, error) {
		return []byte("png:" + models.MonthPrefix(batch.Year, batch.Month)), nil
	}
	return s
}

func TestMonthValidatesAndFilters(t *testing.T) {
	source := &fakeSource{records: mayRecords()}
	s := newTestService(source, nil, nil)

	if _, err := s.Month(context.Background(), 2025, 0); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}

	batch, err := s.Month(context.Background(), 2025, 5)
	if err != nil {
		t.Fatalf("month: %v", err)
	}
	if source.collection != store.FinalShifts {
		t.Fatalf("expected confirmed shifts to be read, got %q", source.collection)
	}
	if len(batch.Records) != 1 || batch.Records[0].ID != "1" {
		t.Fatalf("unexpected batch %+v", batch.Records)
	}

	if _, err := s.Month(context.Background(), 2025, 7); !errors.Is(err, ErrNoShifts) {
		t.Fatalf("expected ErrNoShifts, got %v", err)
	}
}

func TestSendToWebhook(t *testing.T) {
	sink := &fakeImageSink{}
	s := newTestService(&fakeSource{records: mayRecords()}, sink, nil)

	if err := s.SendToWebhook(context.Background(), 2025, 5); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sink.fileName != "2025-05-shift.png" {
		t.Fatalf("unexpected file name %q", sink.fileName)
	}
	if sink.caption != delivery.Caption(2025, 5) {
		t.Fatalf("unexpected caption %q", sink.caption)
	}
	if string(sink.png) != "png:2025-05" {
		t.Fatalf("unexpected payload %q", sink.png)
	}
}

func TestSendToWebhookWrapsSinkErrors(t *testing.T) {
	rejected := &delivery.StatusError{StatusCode: 429}
	s := newTestService(&fakeSource{records: mayRecords()}, &fakeImageSink{err: rejected}, nil)

	err := s.SendToWebhook(context.Background(), 2025, 5)
	var statusErr *delivery.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 429 {
		t.Fatalf("expected wrapped StatusError, got %v", err)
	}
}

func TestUnconfiguredSinks(t *testing.T) {
	s := newTestService(&fakeSource{records: mayRecords()}, nil, nil)
	if err := s.SendToWebhook(context.Background(), 2025, 5); !errors.Is(err, delivery.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.SendToSheet(context.Background(), 2025, 5); !errors.Is(err, delivery.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendToSheet(t *testing.T) {
	sheet := &fakeSheetSink{}
	s := newTestService(&fakeSource{records: mayRecords()}, nil, sheet)

	report, err := s.SendToSheet(context.Background(), 2025, 5)
	if err != nil {
		t.Fatalf("send sheet: %v", err)
	}
	if report.Sheet != "202505" || sheet.batch.Year != 2025 || sheet.batch.Month != 5 {
		t.Fatalf("unexpected report %+v for batch %+v", report, sheet.batch)
	}
}

func TestUseRendererDrawsImage(t *testing.T) {
	s := NewService(&fakeSource{records: mayRecords()}, nil, nil)
	s.UseRenderer(shiftimage.NewRenderer(nil))

	png, err := s.Image(context.Background(), 2025, 5)
	if err != nil {
		t.Fatalf("image: %v", err)
	}
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Fatalf("expected png output, got %d bytes", len(png))
	}
}
