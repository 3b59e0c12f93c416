package excel

import (
	"bytes"
	"strings"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"
)

var ErrMissingHeader = errors.New("missing required header")

// Table is a fully-read spreadsheet: the first row of the first sheet is the
// header, everything below is data. Batches are bounded, so the whole sheet is
// held in memory and the byte buffer is released after parsing.
type Table struct {
	Headers []string
	Rows    [][]string

	index map[string]int
}

// ReadTable parses spreadsheet bytes into a Table. maxRows <= 0 means no cap.
func ReadTable(data []byte, maxRows int) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "open spreadsheet")
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, "read rows")
	}
	if len(rows) == 0 {
		return nil, errors.New("spreadsheet has no header row")
	}
	if maxRows > 0 && len(rows)-1 > maxRows {
		return nil, errors.Errorf("spreadsheet has %d data rows, limit is %d", len(rows)-1, maxRows)
	}

	headers := make([]string, len(rows[0]))
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		name := strings.ToUpper(strings.TrimSpace(h))
		headers[i] = name
		if name == "" {
			continue
		}
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	return &Table{Headers: headers, Rows: rows[1:], index: index}, nil
}

// Require fails with ErrMissingHeader when any of the given headers is absent.
// Unknown columns are ignored by design.
func (t *Table) Require(headers ...string) error {
	var missing []string
	for _, h := range headers {
		if _, ok := t.index[strings.ToUpper(h)]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrMissingHeader, "%s", strings.Join(missing, ", "))
	}
	return nil
}

// Cell reads the tagged cell at data row i (0-based) under the given header.
// Rows shorter than the header row yield Absent cells.
func (t *Table) Cell(i int, header string) Cell {
	col, ok := t.index[strings.ToUpper(header)]
	if !ok {
		return Cell{Kind: Absent}
	}
	if i < 0 || i >= len(t.Rows) || col >= len(t.Rows[i]) {
		return Cell{Kind: Absent}
	}
	return NewCell(t.Rows[i][col])
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }
