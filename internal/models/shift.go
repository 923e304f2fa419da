package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/timeslot"
)

// Slots is the set of half-hour labels a person is scheduled for. Decoding
// is lenient: null, a missing field or a non-array value yields no slots
// and non-string members are dropped.
type Slots []string

func (s *Slots) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = Slots{}
		return nil
	}
	out := make(Slots, 0, len(raw))
	for _, item := range raw {
		var label string
		if err := json.Unmarshal(item, &label); err != nil {
			continue
		}
		out = append(out, label)
	}
	*s = out
	return nil
}

// Contains reports whether label names the same half-hour as one of the
// slots, so " 9:00" matches "09:00". Labels that do not parse as a time
// only match their trimmed text.
func (s Slots) Contains(label string) bool {
	want, ok := timeslot.Value(label)
	for _, v := range s {
		if got, vok := timeslot.Value(v); ok && vok {
			if got == want {
				return true
			}
			continue
		}
		if strings.TrimSpace(v) == strings.TrimSpace(label) {
			return true
		}
	}
	return false
}

// ShiftRecord is one person's slots on one date. The same shape is used for
// availability submissions and confirmed shifts.
type ShiftRecord struct {
	ID          string     `json:"id,omitempty"`
	Date        string     `json:"date"`
	User        string     `json:"user"`
	DisplayName string     `json:"displayName,omitempty"`
	Times       Slots      `json:"times"`
	Memo        string     `json:"memo,omitempty"`
	ConfirmedBy string     `json:"confirmedBy,omitempty"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// Name is the label shown for the record's owner.
func (r ShiftRecord) Name() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.User
}

// RequestedShift is an open slot range the administrator wants someone to
// pick up.
type RequestedShift struct {
	ID    string `json:"id,omitempty"`
	Date  string `json:"date"`
	Times Slots  `json:"times"`
	Memo  string `json:"memo,omitempty"`
}

// AllowedUser is a staff member permitted to use the app.
type AllowedUser struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IsAdmin     bool   `json:"isAdmin"`
}
