// Package shiftimage renders a month of confirmed shifts as a PNG table:
// one merged date cell per day, a colored name cell per person, a column per
// half-hour slot, and a red row flagging slots nobody covers.
package shiftimage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/palette"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

var ErrTooManyRows = errors.New("schedule has too many rows to render")

var (
	colorBackground = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorTitle      = color.RGBA{0x22, 0x22, 0x22, 0xff}
	colorHourLabel  = color.RGBA{0x44, 0x44, 0x44, 0xff}
	colorRule       = color.RGBA{0xbb, 0xbb, 0xbb, 0xff}
	colorCellBorder = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
	colorGroupRule  = color.RGBA{0x88, 0x88, 0x88, 0xff}
	colorName       = color.RGBA{0x33, 0x33, 0x33, 0xff}
	colorScheduled  = color.RGBA{0x4f, 0x8c, 0xff, 0xff}
	colorAlert      = color.RGBA{0xff, 0x4f, 0x4f, 0xff}
)

type geometry struct {
	dateWidth float64
	nameWidth float64
	gridLeft  float64
	cellWidth float64
}

func newGeometry(slotCount int) geometry {
	dateWidth := math.Floor(Width * 0.13)
	nameWidth := math.Floor(Width * 0.12)
	gridLeft := dateWidth + nameWidth
	return geometry{
		dateWidth: dateWidth,
		nameWidth: nameWidth,
		gridLeft:  gridLeft,
		cellWidth: (Width - gridLeft) / float64(slotCount),
	}
}

type faces struct {
	title font.Face
	hour  font.Face
	date  font.Face
	name  font.Face
}

func newFaces(regular, bold []*opentype.Font) (*faces, error) {
	var f faces
	var err error
	if f.title, err = newFallbackFace(bold, 28); err != nil {
		return nil, fmt.Errorf("title face: %w", err)
	}
	if f.hour, err = newFallbackFace(bold, 13); err != nil {
		f.Close()
		return nil, fmt.Errorf("hour face: %w", err)
	}
	if f.date, err = newFallbackFace(regular, 16); err != nil {
		f.Close()
		return nil, fmt.Errorf("date face: %w", err)
	}
	if f.name, err = newFallbackFace(regular, 15); err != nil {
		f.Close()
		return nil, fmt.Errorf("name face: %w", err)
	}
	return &f, nil
}

func (f *faces) Close() {
	for _, face := range []font.Face{f.title, f.hour, f.date, f.name} {
		if face != nil {
			_ = face.Close()
		}
	}
}

// Renderer draws schedule images. Text uses the configured font where it
// has glyphs and the embedded Go fonts otherwise, so names in scripts the
// Go fonts lack can still be drawn when a covering font is supplied.
type Renderer struct {
	regular []*opentype.Font
	bold    []*opentype.Font
}

// NewRenderer returns a Renderer that prefers extra for every face. A nil
// extra renders with the Go fonts only.
func NewRenderer(extra *opentype.Font) *Renderer {
	r := &Renderer{
		regular: []*opentype.Font{regularFont},
		bold:    []*opentype.Font{boldFont},
	}
	if extra != nil {
		r.regular = []*opentype.Font{extra, regularFont}
		r.bold = []*opentype.Font{extra, boldFont}
	}
	return r
}

var defaultRenderer = NewRenderer(nil)

// RenderBatch renders a validated month with the Go fonts.
func RenderBatch(batch models.MonthlyBatch) ([]byte, error) {
	return defaultRenderer.RenderBatch(batch)
}

// Render draws records as a PNG with the Go fonts.
func Render(records []models.ShiftRecord, year, month int) ([]byte, error) {
	return defaultRenderer.Render(records, year, month)
}

// RenderBatch renders a validated month.
func (r *Renderer) RenderBatch(batch models.MonthlyBatch) ([]byte, error) {
	return r.Render(batch.Records, batch.Year, batch.Month)
}

// Render draws records as a PNG. year and month only feed the title; the
// caller is expected to pass records of that month in date order.
func (r *Renderer) Render(records []models.ShiftRecord, year, month int) ([]byte, error) {
	layout := Plan(records)
	if layout.Rows > MaxRows {
		return nil, fmt.Errorf("%w: %d rows (max %d)", ErrTooManyRows, layout.Rows, MaxRows)
	}

	ff, err := newFaces(r.regular, r.bold)
	if err != nil {
		return nil, err
	}
	defer ff.Close()

	c := newCanvas(Width, layout.Height)
	drawTable(c, ff, layout, year, month)

	var out bytes.Buffer
	if err := png.Encode(&out, c.img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

func drawTable(c *canvas, ff *faces, layout Layout, year, month int) {
	g := newGeometry(len(layout.Slots))
	height := float64(layout.Height)
	full := c.img.Bounds()

	c.fill(0, 0, Width, height, colorBackground)
	c.text(fmt.Sprintf("Shift Schedule %d/%02d", year, month), ff.title, colorTitle, 24, 12, alignLeft, baselineTop, full)

	for i, slot := range layout.Slots {
		if !strings.HasSuffix(slot, ":00") {
			continue
		}
		span := 2.0
		if i == len(layout.Slots)-1 {
			span = 1
		}
		x := g.gridLeft + float64(i)*g.cellWidth + span*g.cellWidth/2
		c.text(slot, ff.hour, colorHourLabel, x, HeaderHeight-22, alignCenter, baselineTop, full)
	}
	c.hline(HeaderHeight-4, 0, Width, 1, colorRule)

	row := 0
	for _, group := range layout.Groups {
		drawGroup(c, ff, g, layout.Slots, group, row)
		row += group.RowCount()
	}

	row = 0
	for _, group := range layout.Groups {
		for i := 1; i < group.RowCount(); i++ {
			y := float64(HeaderHeight + (row+i)*RowHeight)
			c.hline(y, g.dateWidth, Width, 1, colorRule)
		}
		row += group.RowCount()
	}

	c.vline(g.dateWidth, HeaderHeight-4, height, colorRule)
	c.vline(g.gridLeft, HeaderHeight-4, height, colorRule)
}

func drawGroup(c *canvas, ff *faces, g geometry, slots []string, group DateGroup, firstRow int) {
	top := float64(HeaderHeight + firstRow*RowHeight)
	extent := float64(group.RowCount() * RowHeight)

	dateClip := image.Rect(0, px(top), px(g.dateWidth), px(top+extent))
	c.text(group.Date, ff.date, colorTitle, g.dateWidth/2, top+extent/2, alignCenter, baselineMiddle, dateClip)

	for i, rec := range group.Records {
		y := top + float64(i*RowHeight)

		bg := palette.NameCell(palette.Identifier(rec.User, rec.DisplayName)).RGBA()
		c.fill(g.dateWidth, y, g.dateWidth+g.nameWidth, y+RowHeight, bg)
		nameClip := image.Rect(px(g.dateWidth), px(y), px(g.gridLeft), px(y+RowHeight))
		c.text(rec.Name(), ff.name, colorName, g.dateWidth+10, y+RowHeight/2, alignLeft, baselineMiddle, nameClip)

		for col, slot := range slots {
			drawSlotCell(c, g, col, y, rec.Times.Contains(slot), colorScheduled)
		}
	}

	if group.HasGapRow() {
		y := top + float64(len(group.Records)*RowHeight)
		flagged := make(map[int]bool, len(group.Gap))
		for _, col := range group.Gap {
			flagged[col] = true
		}
		for col := range slots {
			drawSlotCell(c, g, col, y, flagged[col], colorAlert)
		}
	}

	c.hline(top, 0, Width, 3, colorGroupRule)
}

func drawSlotCell(c *canvas, g geometry, col int, y float64, filled bool, fill color.Color) {
	x := g.gridLeft + float64(col)*g.cellWidth
	c.strokeRect(x, y, g.cellWidth, RowHeight, colorCellBorder)
	if filled {
		c.fill(x+1, y+1, x+g.cellWidth-1, y+RowHeight-1, fill)
	}
}
