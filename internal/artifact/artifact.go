// Package artifact implements C7: producing output PDFs from a validated
// SSOT. Opaque to spec.md beyond the I/O contract (input: validated SSOT +
// output path; output: a written file, size > 0). The configuration ->
// renderer dispatch table is a supplemented feature recovered from
// original_source/worker/src/generators/templates/tpl_*.py (see DESIGN.md).
package artifact

import (
	"fmt"
	"os"

	"github.com/go-pdf/fpdf"

	"github.com/cgs/glassbid-worker/internal/model"
)

// Generator produces output PDFs from a validated SSOT.
type Generator interface {
	GenerateBidPDF(ssot *model.SSOT, outputPath string) error
	GenerateShopDrawingsPDF(ssot *model.SSOT, outputPath string) error
}

// FPDFGenerator is the fpdf-backed implementation.
type FPDFGenerator struct{}

// New builds an FPDFGenerator.
func New() *FPDFGenerator { return &FPDFGenerator{} }

// GenerateBidPDF renders the bid breakdown: one line per priced item plus
// the subtotal/tax/total summary.
func (g *FPDFGenerator) GenerateBidPDF(ssot *model.SSOT, outputPath string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Bid Breakdown", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.Ln(4)

	byID := make(map[string]model.Item, len(ssot.Items))
	for _, it := range ssot.Items {
		byID[it.ItemID] = it
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(90, 8, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(50, 8, "Category", "B", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, "Total", "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)

	for _, li := range ssot.Pricing.LineItems {
		item := byID[li.ItemID]
		pdf.CellFormat(90, 8, li.ItemID, "", 0, "L", false, 0, "")
		pdf.CellFormat(50, 8, string(item.Category), "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 8, fmt.Sprintf("$%.2f", li.TotalPrice), "", 1, "R", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(140, 8, "Subtotal", "T", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, fmt.Sprintf("$%.2f", ssot.Pricing.Subtotal), "T", 1, "R", false, 0, "")
	pdf.CellFormat(140, 8, "Tax", "", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, fmt.Sprintf("$%.2f", ssot.Pricing.Tax), "", 1, "R", false, 0, "")
	pdf.CellFormat(140, 8, "Total", "", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, fmt.Sprintf("$%.2f", ssot.Pricing.Total), "", 1, "R", false, 0, "")

	return writePDF(pdf, outputPath)
}

// GenerateShopDrawingsPDF renders one page per item via the
// configuration -> renderer dispatch table, falling back to a
// "not available" placeholder for unknown configurations (spec.md §9).
func (g *FPDFGenerator) GenerateShopDrawingsPDF(ssot *model.SSOT, outputPath string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)

	for _, item := range ssot.Items {
		pdf.AddPage()
		renderer, ok := templateDispatch[item.Configuration]
		if !ok {
			renderer = renderPlaceholder
		}
		renderer(pdf, item)
	}

	if len(ssot.Items) == 0 {
		pdf.AddPage()
		renderPlaceholder(pdf, model.Item{})
	}

	return writePDF(pdf, outputPath)
}

func writePDF(pdf *fpdf.Fpdf, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	defer f.Close()

	if err := pdf.Output(f); err != nil {
		return fmt.Errorf("write pdf %s: %w", outputPath, err)
	}
	return nil
}
