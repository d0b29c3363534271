// Package exporter writes the persisted catalog and analysis data to a
// spreadsheet workbook. It is a pure read of store state.
package exporter

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/amosWeiskopf/sneakscout/internal/models"
	"github.com/amosWeiskopf/sneakscout/pkg/store"
)

// Sheet names, fixed by the report consumers.
const (
	SheetSneakers = "Sneakers"
	SheetAnalysis = "Analysis"
	SheetMostSold = "Most Sold"
)

// Exporter generates the three-sheet catalog report.
type Exporter struct {
	topN int
	log  *logrus.Logger
}

// New creates a new Exporter instance
func New(topN int, log *logrus.Logger) *Exporter {
	if topN <= 0 {
		topN = 20
	}
	return &Exporter{topN: topN, log: log}
}

// Export writes the workbook to path, overwriting any prior file.
func (e *Exporter) Export(ctx context.Context, s *store.Store, path string) error {
	products, err := s.Products(ctx)
	if err != nil {
		return fmt.Errorf("read products: %w", err)
	}
	analyses, err := s.Analyses(ctx)
	if err != nil {
		return fmt.Errorf("read analyses: %w", err)
	}
	top, err := s.TopAnalyses(ctx, e.topN)
	if err != nil {
		return fmt.Errorf("read top analyses: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeSneakers(f, products); err != nil {
		return err
	}
	if err := e.writeAnalyses(f, SheetAnalysis, analyses); err != nil {
		return err
	}
	if err := e.writeAnalyses(f, SheetMostSold, top); err != nil {
		return err
	}

	// Drop the workbook's default sheet so exactly three remain.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"path":     path,
		"products": len(products),
		"analyses": len(analyses),
	}).Info("report exported")
	return nil
}

func (e *Exporter) writeSneakers(f *excelize.File, products []models.Product) error {
	if _, err := f.NewSheet(SheetSneakers); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetSneakers, "A1",
		&[]any{"Name", "Brand", "Price", "Review Count", "SKU", "URL"}); err != nil {
		return err
	}

	for i, p := range products {
		row := []any{p.Name, p.BrandName, p.Price, nil, p.SKU, p.URL}
		if p.ReviewCount != nil {
			row[3] = *p.ReviewCount
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSneakers, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeAnalyses(f *excelize.File, sheet string, analyses []models.Analysis) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1",
		&[]any{"Name", "Brand", "Positive Reviews"}); err != nil {
		return err
	}

	for i, a := range analyses {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell,
			&[]any{a.Name, a.Brand, a.PositiveReviews}); err != nil {
			return err
		}
	}
	return nil
}
