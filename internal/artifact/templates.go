package artifact

import (
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/cgs/glassbid-worker/internal/model"
	"github.com/cgs/glassbid-worker/internal/stage"
)

// templateRenderer draws one item's shop-drawing page. The drawing logic
// itself stays out of scope (spec.md §1); each renderer here emits a
// labeled placeholder page that identifies the template recovered from
// original_source, not a rendered elevation.
type templateRenderer func(pdf *fpdf.Fpdf, item model.Item)

// templateDispatch is the static configuration -> renderer table spec.md
// §9 calls for, keyed by the four templates recovered from
// original_source/worker/src/generators/templates/tpl_{02,04,07,09}_*.py.
var templateDispatch = map[string]templateRenderer{
	"02_inline_panel_door":     renderTemplate("Inline Panel Door"),
	"04_90_degree_corner_door": renderTemplate("90-Degree Corner Door"),
	"07_bathtub_fixed_panel":   renderTemplate("Bathtub Fixed Panel"),
	"09_vanity_mirror":         renderTemplate("Vanity Mirror"),
}

func renderTemplate(label string) templateRenderer {
	return func(pdf *fpdf.Fpdf, item model.Item) {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 10, label, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, fmt.Sprintf("Item: %s", item.ItemID), "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 8, fmt.Sprintf("Width: %s", stage.FormatDimension(item.Dimensions.Width.Value)), "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 8, fmt.Sprintf("Height: %s", stage.FormatDimension(item.Dimensions.Height.Value)), "", 1, "L", false, 0, "")
	}
}

// renderPlaceholder is the default for unknown configurations (spec.md §9,
// "unknown configurations render a 'not available' placeholder").
func renderPlaceholder(pdf *fpdf.Fpdf, item model.Item) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Shop Drawing Not Available", "", 1, "L", false, 0, "")
	if item.ItemID != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, fmt.Sprintf("Item: %s (configuration: %s)", item.ItemID, item.Configuration), "", 1, "L", false, 0, "")
	}
}
