package model

import (
	"reflect"
	"time"
)

// Classification is a page's classification after INDEXING.
type Classification string

const (
	ClassTitle     Classification = "TITLE"
	ClassFloorPlan Classification = "FLOOR_PLAN"
	ClassElevation Classification = "ELEVATION"
	ClassSchedule  Classification = "SCHEDULE"
	ClassDetail    Classification = "DETAIL"
	ClassNotes     Classification = "NOTES"
	ClassIrrelevant Classification = "IRRELEVANT"
)

// RelevanceTag is a domain the page's content speaks to.
type RelevanceTag string

const (
	RelevantShowers     RelevanceTag = "showers"
	RelevantMirrors     RelevanceTag = "mirrors"
	RelevantAssumptions RelevanceTag = "assumptions"
)

// Category is a scope-item category.
type Category string

const (
	CategoryShowerEnclosure Category = "SHOWER_ENCLOSURE"
	CategoryVanityMirror    Category = "VANITY_MIRROR"
)

// DimensionSource records how a dimension value was obtained.
type DimensionSource string

const (
	SourceDimensionCallout DimensionSource = "DIMENSION_CALLOUT"
	SourceFieldVerify      DimensionSource = "FIELD_VERIFY"
)

// ItemFlag is a scope-item flag.
type ItemFlag string

const (
	FlagNeedsReview         ItemFlag = "NEEDS_REVIEW"
	FlagToBeVerifiedInField ItemFlag = "TO_BE_VERIFIED_IN_FIELD"
)

// OutputType is the type of a generated artifact.
type OutputType string

const (
	OutputBidPDF          OutputType = "BID_PDF"
	OutputShopDrawingsPDF OutputType = "SHOP_DRAWINGS_PDF"
)

// SSOT is the job's single source of truth, a JSON tree successive stages
// read, extend, and write back whole (spec.md §3, §9 "JSON-as-database-column").
type SSOT struct {
	Metadata Metadata `json:"metadata"`

	PageIndex []PageIndexEntry `json:"pageIndex,omitempty"`

	Routing Routing `json:"routing"`

	Items []Item `json:"items,omitempty"`

	MeasurementTasks []MeasurementTask `json:"measurementTasks,omitempty"`

	Assumptions []string `json:"assumptions,omitempty"`
	Exclusions  []string `json:"exclusions,omitempty"`

	Pricing Pricing `json:"pricing"`

	Outputs []Output `json:"outputs,omitempty"`
}

// Empty reports whether the SSOT is nil or the zero-value document. The
// stage entry guards check the slice each stage writes, not this method.
func (s *SSOT) Empty() bool {
	return s == nil || reflect.DeepEqual(*s, SSOT{})
}

// Metadata holds project/client info and the page count.
type Metadata struct {
	ProjectID string `json:"projectId,omitempty"`
	ClientName string `json:"clientName,omitempty"`
	PageCount int    `json:"pageCount"`
}

// PageIndexEntry is one page's classification record.
type PageIndexEntry struct {
	PageNum        int            `json:"pageNum"`
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence"`
	RelevantTo     []RelevanceTag `json:"relevantTo,omitempty"`
}

// Routing is the set of pages carried forward into extraction.
type Routing struct {
	RelevantPages []int `json:"relevantPages,omitempty"`
	TotalPages    int   `json:"totalPages"`
}

// Dimension is a single width/height/depth measurement.
type Dimension struct {
	Value      *float64        `json:"value"`
	Unit       string          `json:"unit,omitempty"`
	Source     DimensionSource `json:"source,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
}

// Dimensions groups an item's three measurable axes.
type Dimensions struct {
	Width  Dimension `json:"width"`
	Height Dimension `json:"height"`
	Depth  Dimension `json:"depth"`
}

// Item is an extracted scope item.
type Item struct {
	ItemID          string     `json:"itemId"`
	Category        Category   `json:"category"`
	Configuration   string     `json:"configuration"`
	Dimensions      Dimensions `json:"dimensions"`
	Flags           []ItemFlag `json:"flags,omitempty"`
	SourcePages     []int      `json:"sourcePages,omitempty"`
	QuantityPerUnit int        `json:"quantityPerUnit"`
	UnitID          string     `json:"unitId,omitempty"`
	Location        string     `json:"location,omitempty"`
}

// HasFlag reports whether the item carries the given flag.
func (it *Item) HasFlag(f ItemFlag) bool {
	for _, x := range it.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// MeasurementDimensionKey is the axis a measurement task resolves.
type MeasurementDimensionKey string

const (
	DimensionWidth  MeasurementDimensionKey = "width"
	DimensionHeight MeasurementDimensionKey = "height"
)

// MeasurementTaskStatus is the lifecycle state of a measurement task.
type MeasurementTaskStatus string

const (
	MeasurementTaskPending MeasurementTaskStatus = "PENDING"
	MeasurementTaskDone    MeasurementTaskStatus = "DONE"
)

// MeasurementTask records a missing dimension awaiting field verification.
type MeasurementTask struct {
	ID            string                   `json:"id"`
	JobID         string                   `json:"jobId"`
	ItemID        string                   `json:"itemId"`
	DimensionKey  MeasurementDimensionKey  `json:"dimensionKey"`
	PageNum       int                      `json:"pageNum"`
	Status        MeasurementTaskStatus    `json:"status"`
	MeasuredValue *float64                 `json:"measuredValue,omitempty"`
	MeasuredBy    string                   `json:"measuredBy,omitempty"`
	MeasuredAt    *time.Time               `json:"measuredAt,omitempty"`
}

// LineItem is one priced item in the breakdown.
type LineItem struct {
	ItemID         string     `json:"itemId"`
	UnitPrice      float64    `json:"unitPrice"`
	TotalPrice     float64    `json:"totalPrice"`
	Breakdown      Breakdown  `json:"breakdown"`
	ManualOverride bool       `json:"manualOverride,omitempty"`
}

// Breakdown is the decorative per-component price split (spec.md §4.5.4;
// not validated against the subtotal invariant, see "Open question —
// breakdown rounding" in spec.md §9).
type Breakdown struct {
	Glass    float64 `json:"glass"`
	Hardware float64 `json:"hardware"`
	Labor    float64 `json:"labor"`
	Other    float64 `json:"other"`
}

// Pricing is the job's pricing result tree.
type Pricing struct {
	PricebookVersionID string     `json:"pricebookVersionId,omitempty"`
	Rules              []string   `json:"rules,omitempty"`
	LineItems          []LineItem `json:"lineItems,omitempty"`
	Subtotal           float64    `json:"subtotal"`
	Tax                float64    `json:"tax"`
	Total              float64    `json:"total"`
}

// Output is a generated artifact's record.
type Output struct {
	OutputID    string     `json:"outputId"`
	Type        OutputType `json:"type"`
	Version     int        `json:"version"`
	Bucket      string     `json:"bucket"`
	Key         string     `json:"key"`
	GeneratedAt time.Time  `json:"generatedAt"`
	SHA256      string     `json:"sha256"`
}

// MaxOutputVersion returns the highest version recorded for the given
// output type, or 0 if none exist.
func (s *SSOT) MaxOutputVersion(t OutputType) int {
	max := 0
	for _, o := range s.Outputs {
		if o.Type == t && o.Version > max {
			max = o.Version
		}
	}
	return max
}
