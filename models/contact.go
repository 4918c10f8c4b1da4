package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrichment statuses for a contact
const (
	EnrichmentPending   = "pending"
	EnrichmentCompleted = "completed"
	EnrichmentFailed    = "failed"
)

// Enrichment sources
const (
	EnrichmentSourceWeb    = "web"
	EnrichmentSourceApollo = "apollo"
	EnrichmentSourceManual = "manual"
)

// Contact is a person at a company. At most one contact per company is
// treated as the principal owner; the enricher only ever promotes one per
// cycle and demotes stale flags when it does.
type Contact struct {
	gorm.Model
	CompanyID uint `gorm:"not null;index" json:"company_id"`

	Name        string `gorm:"not null" json:"name"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LinkedinURL string `json:"linkedin_url"`
	FacebookURL string `json:"facebook_url"`

	IsPrincipalOwner bool `gorm:"default:false;index" json:"is_principal_owner"`

	EnrichmentStatus string                 `json:"enrichment_status"` // pending, completed, failed
	EnrichmentData   map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"enrichment_data,omitempty"`
	EnrichmentSource string                 `json:"enrichment_source"` // web, apollo, manual
	EnrichedAt       *time.Time             `json:"enriched_at"`

	LastContactDate *time.Time `json:"last_contact_date"`
	Notes           string     `json:"notes"`

	// Relations
	Company Company `json:"-"`
}

// HasDeliverableEmail reports whether the contact can actually receive
// outreach. Drafting and sending both require this.
func (c *Contact) HasDeliverableEmail() bool {
	return c != nil && c.Email != ""
}

// PrincipalOwner returns the company's principal-owner contact, or nil.
func PrincipalOwner(db *gorm.DB, companyID uint) (*Contact, error) {
	var contact Contact
	err := db.Where("company_id = ? AND is_principal_owner = ?", companyID, true).
		Order("updated_at DESC").
		First(&contact).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}
