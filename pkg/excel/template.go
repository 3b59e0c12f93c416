package excel

import (
	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"
)

// WriteTemplate builds an empty workbook whose first sheet carries exactly the
// given header row. Operators fill these in and feed them back to the ingest
// engine.
func WriteTemplate(sheet string, headers []string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	defaultSheet := f.GetSheetName(0)
	if sheet != "" && sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return nil, errors.Wrap(err, "rename sheet")
		}
	} else {
		sheet = defaultSheet
	}

	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return nil, errors.Wrap(err, "write header row")
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "header style")
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return nil, errors.Wrap(err, "column name")
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return nil, errors.Wrap(err, "apply header style")
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "serialize workbook")
	}
	return buf.Bytes(), nil
}
