package rbac

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	matrixSheet = "Matrix"
	grantMark   = "✓"
)

// WriteMatrixXLSX writes m as a workbook: one row per role, one column per
// scope code, a check mark where the role holds the scope.
func WriteMatrixXLSX(w io.Writer, m *Matrix) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", matrixSheet); err != nil {
		return err
	}
	header := []any{"Role", "Code"}
	for _, s := range m.Scopes {
		header = append(header, s.Code)
	}
	if err := f.SetSheetRow(matrixSheet, "A1", &header); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(matrixSheet, "A1", lastHeader, headerStyle); err != nil {
		return err
	}
	for i, r := range m.Roles {
		row := []any{r.Name, r.Code}
		for _, s := range m.Scopes {
			mark := ""
			if m.Has(r.ID, s.ID) {
				mark = grantMark
			}
			row = append(row, mark)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(matrixSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(matrixSheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      2,
		YSplit:      1,
		TopLeftCell: "C2",
		ActivePane:  "bottomRight",
	}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

// ExportMatrix loads the grant matrix and writes it as XLSX.
func (s *Service) ExportMatrix(ctx context.Context, w io.Writer) error {
	m, err := s.Matrix(ctx)
	if err != nil {
		return err
	}
	if err := WriteMatrixXLSX(w, m); err != nil {
		return fmt.Errorf("rbac: export matrix: %w", err)
	}
	return nil
}
