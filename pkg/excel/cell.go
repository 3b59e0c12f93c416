package excel

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// CellKind tags the outcome of reading one spreadsheet cell.
type CellKind int

const (
	Absent CellKind = iota
	Present
	Unparseable
)

// Cell is the tagged result of a cell read. Spreadsheets from the field mix
// numbers, numeric strings, locale dates and null-like junk; every consumer
// decides from the tag instead of duck-typing the raw value.
type Cell struct {
	Kind   CellKind
	Raw    string
	Reason string
}

var nullLikeTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"none": {},
	"null": {},
}

// NewCell classifies a raw cell string. Null-like tokens ("", "nan", "none",
// "null", case-insensitive) become Absent.
func NewCell(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if _, ok := nullLikeTokens[strings.ToLower(trimmed)]; ok {
		return Cell{Kind: Absent}
	}
	return Cell{Kind: Present, Raw: trimmed}
}

func (c Cell) IsAbsent() bool { return c.Kind != Present }

// String returns the trimmed cell text if present.
func (c Cell) String() (string, bool) {
	if c.Kind != Present {
		return "", false
	}
	return c.Raw, true
}

// Int parses the cell as an integer, going through float first so that
// spreadsheet artifacts like "4.0" survive.
func (c Cell) Int() (int, bool) {
	s, ok := c.String()
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
}

// Date parses the cell as a calendar date, accepting ISO forms, locale
// DD/MM/YYYY and raw Excel serials (date cells without a number format reach
// us as plain numbers). The result is the UTC midnight of that day.
func (c Cell) Date() (time.Time, bool) {
	s, ok := c.String()
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= minDateSerial && serial <= maxDateSerial {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// Serials outside 1900..2200 are treated as stray numbers, not dates.
const (
	minDateSerial = 61     // 1900-03-01, past the Lotus leap-year gap
	maxDateSerial = 109574 // 2200-01-01
)
