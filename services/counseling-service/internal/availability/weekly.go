package availability

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Weekday literals used as availability keys.
const (
	Sunday    = "Domingo"
	Monday    = "Segunda"
	Tuesday   = "Terça"
	Wednesday = "Quarta"
	Thursday  = "Quinta"
	Friday    = "Sexta"
	Saturday  = "Sábado"
)

var weekdayNames = [7]string{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// Weekly maps a weekday literal to its "HH:MM" slots. Lists may arrive
// unsorted, with duplicates or unpadded hours; readers normalize.
type Weekly map[string][]string

// Get returns the normalized, deduplicated, sorted slots for weekday
// (possibly empty). Clocks that cannot be read are left out.
func (w Weekly) Get(weekday string) []string {
	if w == nil {
		return nil
	}
	src := w[weekday]
	if len(src) == 0 {
		return nil
	}
	out := make([]string, 0, len(src))
	for _, s := range src {
		if clock, ok := NormalizeClock(s); ok {
			out = append(out, clock)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (w Weekly) Empty() bool {
	for _, slots := range w {
		if len(slots) > 0 {
			return false
		}
	}
	return true
}

// UnmarshalJSON never fails; see Decode.
func (w *Weekly) UnmarshalJSON(data []byte) error {
	*w = Decode(data)
	return nil
}

// Decode reads availability as stored: first as an object, then as a JSON
// string holding an object (legacy rows), otherwise an empty mapping.
// Weekday keys are canonicalized; unknown keys are dropped.
func Decode(raw []byte) Weekly {
	if m, _, ok := decodeObject(raw); ok {
		return m
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if m, _, ok := decodeObject([]byte(s)); ok {
			return m
		}
	}
	return Weekly{}
}

// Valid reports whether raw decodes to something other than the fallback
// with every clock readable, so callers can log data-integrity faults.
func Valid(raw []byte) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	if _, dropped, ok := decodeObject(raw); ok {
		return dropped == 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		_, dropped, ok := decodeObject([]byte(s))
		return ok && dropped == 0
	}
	return false
}

// decodeObject also reports how many clocks it had to drop.
func decodeObject(raw []byte) (Weekly, int, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, 0, false
	}
	out := Weekly{}
	dropped := 0
	for k, v := range m {
		day, ok := CanonicalWeekday(k)
		if !ok {
			continue
		}
		var slots []string
		if err := json.Unmarshal(v, &slots); err != nil {
			continue
		}
		for _, s := range slots {
			clock, ok := NormalizeClock(s)
			if !ok {
				dropped++
				continue
			}
			out[day] = append(out[day], clock)
		}
	}
	return out, dropped, true
}

// NormalizeClock reads "H:MM" or "HH:MM" and returns the zero-padded form.
func NormalizeClock(s string) (string, bool) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return "", false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return "", false
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// CanonicalWeekday accepts "Segunda", "segunda-feira", "Terca", "SÁBADO"...
func CanonicalWeekday(s string) (string, bool) {
	key := foldWeekday(s)
	for _, name := range weekdayNames {
		if foldWeekday(name) == key {
			return name, true
		}
	}
	return "", false
}

func foldWeekday(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "-feira")
	s = strings.TrimSuffix(s, " feira")
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if r >= 0x300 && r <= 0x36f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}
