// Package publish loads a confirmed month and hands it to the image and
// spreadsheet sinks.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/delivery"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/logger"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/shiftimage"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/store"
)

var (
	ErrNoShifts     = errors.New("no confirmed shifts for the requested month")
	ErrInvalidMonth = models.ErrInvalidMonth
)

// Source supplies the confirmed records of a month.
type Source interface {
	MonthRecords(ctx context.Context, collection string, year, month int) ([]models.ShiftRecord, error)
}

type ImageSink interface {
	SendImage(ctx context.Context, fileName, caption string, png []byte) error
}

type SheetSink interface {
	WriteMonth(ctx context.Context, batch models.MonthlyBatch) (delivery.SheetReport, error)
}

type Service struct {
	source Source
	image  ImageSink
	sheet  SheetSink
	render func(models.MonthlyBatch) ([]byte, error)
}

func NewService(source Source, image ImageSink, sheet SheetSink) *Service {
	return &Service{
		source: source,
		image:  image,
		sheet:  sheet,
		render: shiftimage.RenderBatch,
	}
}

// UseRenderer switches image rendering to r, for example one loaded with a
// font that covers the staff's names.
func (s *Service) UseRenderer(r *shiftimage.Renderer) {
	s.render = r.RenderBatch
}

// Month loads and validates the confirmed schedule of year/month.
func (s *Service) Month(ctx context.Context, year, month int) (models.MonthlyBatch, error) {
	if err := models.ValidateMonth(year, month); err != nil {
		return models.MonthlyBatch{}, err
	}
	records, err := s.source.MonthRecords(ctx, store.FinalShifts, year, month)
	if err != nil {
		return models.MonthlyBatch{}, fmt.Errorf("load confirmed shifts: %w", err)
	}
	batch, err := models.NewMonthlyBatch(year, month, records)
	if err != nil {
		return models.MonthlyBatch{}, err
	}
	if len(batch.Records) == 0 {
		return models.MonthlyBatch{}, fmt.Errorf("%w: %s", ErrNoShifts, models.MonthPrefix(year, month))
	}
	return batch, nil
}

// Image renders the month without sending it anywhere.
func (s *Service) Image(ctx context.Context, year, month int) ([]byte, error) {
	batch, err := s.Month(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return s.render(batch)
}

// SendToWebhook renders the month and posts it to the image sink.
func (s *Service) SendToWebhook(ctx context.Context, year, month int) error {
	batch, err := s.Month(ctx, year, month)
	if err != nil {
		return err
	}
	if s.image == nil {
		return delivery.ErrNotConfigured
	}
	png, err := s.render(batch)
	if err != nil {
		return fmt.Errorf("render schedule: %w", err)
	}
	if err := s.image.SendImage(ctx, delivery.ImageFileName(year, month), delivery.Caption(year, month), png); err != nil {
		return fmt.Errorf("send schedule image: %w", err)
	}
	logger.Info("schedule image sent", "month", models.MonthPrefix(year, month), "records", len(batch.Records), "bytes", len(png))
	return nil
}

// SendToSheet writes the month into the workbook sink.
func (s *Service) SendToSheet(ctx context.Context, year, month int) (delivery.SheetReport, error) {
	batch, err := s.Month(ctx, year, month)
	if err != nil {
		return delivery.SheetReport{}, err
	}
	if s.sheet == nil {
		return delivery.SheetReport{}, delivery.ErrNotConfigured
	}
	report, err := s.sheet.WriteMonth(ctx, batch)
	if err != nil {
		return delivery.SheetReport{}, fmt.Errorf("write schedule sheet: %w", err)
	}
	if len(report.Unmatched) > 0 {
		logger.Warn("schedule sheet has unmatched entries", "sheet", report.Sheet, "unmatched", len(report.Unmatched))
	}
	logger.Info("schedule sheet written", "sheet", report.Sheet, "cells", len(report.Written))
	return report, nil
}
