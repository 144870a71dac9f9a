// Package export writes the citation ledger as an XLSX workbook for
// offline review.
package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/slugwatch/citation-cli/internal/ledger"
)

// Workbook builds the XLSX file in memory from the ledger.
func Workbook(ldg *ledger.Ledger) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Citations")
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{"Citation", "Location", "Issued At"} {
		header.AddCell().SetString(col)
	}

	for _, rec := range ldg.Records() {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.ID)
		row.AddCell().SetString(rec.Location)
		row.AddCell().SetDateTime(rec.IssuedAt)
	}
	return f, nil
}

// WriteFile renders the workbook to path.
func WriteFile(ldg *ledger.Ledger, path string) error {
	f, err := Workbook(ldg)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
