package models

import (
	"gorm.io/gorm"
)

// Pipeline stages for a company
const (
	StageIdentified   = "Identified"
	StageOutreachSent = "Outreach Sent"
	StageEngaged      = "Engaged"
	StageNDASigned    = "NDA Signed"
	StageDiligence    = "Diligence"
	StageLOISubmitted = "LOI Submitted"
	StageLOISigned    = "LOI Signed"
	StageClosed       = "Closed"
	StagePassed       = "Passed"
	StageOnHold       = "On Hold"
)

// PipelineStages lists every stage in kanban order.
var PipelineStages = []string{
	StageIdentified, StageOutreachSent, StageEngaged, StageNDASigned,
	StageDiligence, StageLOISubmitted, StageLOISigned, StageClosed,
	StagePassed, StageOnHold,
}

// Ownership types
const (
	OwnershipFounderOwned = "Founder-Owned"
	OwnershipPEBacked     = "PE-Backed"
	OwnershipFamilyOwned  = "Family-Owned"
	OwnershipPublic       = "Public"
	OwnershipUnknown      = "Unknown"
)

// Company is a target business in the sourcing pipeline
type Company struct {
	gorm.Model
	Name          string `gorm:"not null;index" json:"name"`
	Website       string `json:"website"`
	HQLocation    string `json:"hq_location"`
	EmployeeCount int    `json:"employee_count"`

	// Sector is deliberately free text: new sectors show up constantly in
	// sourcing and the data model must not constrain them to a closed set.
	Sector        string `gorm:"default:'Other'" json:"sector"`
	OwnershipType string `gorm:"default:'Unknown'" json:"ownership_type"`

	RevenueLow  float64 `json:"revenue_low"`
	RevenueHigh float64 `json:"revenue_high"`
	EBITDALow   float64 `json:"ebitda_low"`
	EBITDAHigh  float64 `json:"ebitda_high"`

	Stage      string `gorm:"default:'Identified';index" json:"stage"`
	AIFitScore int    `json:"ai_fit_score"` // 0-100, set by sourcing analysis
	Source     string `json:"source"`
	Notes      string `json:"notes"`
	AddedBy    uint   `gorm:"index" json:"added_by"`

	// Relations
	Contacts []Contact `gorm:"foreignKey:CompanyID" json:"contacts,omitempty"`
}

var sectorColors = map[string]string{
	"Healthcare":            "rose",
	"Home Services":         "amber",
	"Business Services":     "sky",
	"Logistics":             "indigo",
	"Manufacturing":         "slate",
	"Consumer":              "emerald",
	"Technology":            "violet",
	"Financial Services":    "teal",
	"Education":             "orange",
	"Professional Services": "cyan",
}

// SectorColor returns the display color for a sector, falling back to a
// neutral default for sectors we have never seen. Presentation only; the
// stored sector remains an open string.
func SectorColor(sector string) string {
	if c, ok := sectorColors[sector]; ok {
		return c
	}
	return "zinc"
}
