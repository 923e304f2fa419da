package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSlotsDecodeDegradesGracefully(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "array", body: `{"date":"2025-05-10","times":["11:00","11:30"]}`, want: 2},
		{name: "missing", body: `{"date":"2025-05-10"}`, want: 0},
		{name: "null", body: `{"date":"2025-05-10","times":null}`, want: 0},
		{name: "string", body: `{"date":"2025-05-10","times":"11:00"}`, want: 0},
		{name: "object", body: `{"date":"2025-05-10","times":{"a":1}}`, want: 0},
		{name: "mixed members", body: `{"date":"2025-05-10","times":["11:00",3,null,"12:00"]}`, want: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var rec ShiftRecord
			if err := json.Unmarshal([]byte(tc.body), &rec); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(rec.Times) != tc.want {
				t.Fatalf("expected %d slots, got %v", tc.want, rec.Times)
			}
			if rec.Date != "2025-05-10" {
				t.Fatalf("other fields should still decode, got %+v", rec)
			}
		})
	}
}

func TestSlotsContainsComparesTimes(t *testing.T) {
	slots := Slots{" 13:00", "09:30", "open"}
	for _, label := range []string{"13:00", "9:30", " 09:30 ", "open"} {
		if !slots.Contains(label) {
			t.Fatalf("expected %v to contain %q", slots, label)
		}
	}
	for _, label := range []string{"13:30", "9:00", "close", ""} {
		if slots.Contains(label) {
			t.Fatalf("expected %v not to contain %q", slots, label)
		}
	}
}

func TestShiftRecordName(t *testing.T) {
	if got := (ShiftRecord{User: "a@x.com", DisplayName: "Alice"}).Name(); got != "Alice" {
		t.Fatalf("expected display name, got %q", got)
	}
	if got := (ShiftRecord{User: "a@x.com"}).Name(); got != "a@x.com" {
		t.Fatalf("expected user fallback, got %q", got)
	}
}

func TestNewMonthlyBatchFiltersAndSorts(t *testing.T) {
	records := []ShiftRecord{
		{Date: "2025-05-20", User: "c"},
		{Date: "2025-04-30", User: "x"},
		{Date: "2025-05-03", User: "a"},
		{Date: "2025-05-20", User: "d"},
		{Date: "2025-06-01", User: "y"},
		{Date: "2025-05-03", User: "b"},
	}
	batch, err := NewMonthlyBatch(2025, 5, records)
	if err != nil {
		t.Fatalf("new batch: %v", err)
	}
	var users string
	for _, rec := range batch.Records {
		users += rec.User
	}
	if users != "abcd" {
		t.Fatalf("expected filtered stable order abcd, got %q", users)
	}
	if records[0].User != "c" {
		t.Fatalf("input must not be reordered")
	}
}

func TestNewMonthlyBatchRejectsBadMonth(t *testing.T) {
	for _, month := range []int{0, 13, -1} {
		if _, err := NewMonthlyBatch(2025, month, nil); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("month %d: expected ErrInvalidMonth, got %v", month, err)
		}
	}
}

func TestMonthBounds(t *testing.T) {
	from, to := MonthBounds(2025, 5)
	if from != "2025-05-01" || to != "2025-05-31" {
		t.Fatalf("unexpected bounds %s %s", from, to)
	}
}
