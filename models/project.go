package models

import (
	"time"

	"gorm.io/gorm"
)

// Project is a named folder grouping companies under one deal thesis.
type Project struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Color       string `gorm:"default:'slate'" json:"color"`
	CreatedBy   uint   `gorm:"index" json:"created_by"`

	// Relations
	Companies []ProjectCompany `gorm:"foreignKey:ProjectID" json:"companies,omitempty"`
}

// ProjectCompany joins companies to projects (many-to-many). Removing a
// project deletes its entries but never the companies themselves.
type ProjectCompany struct {
	gorm.Model
	ProjectID uint `gorm:"not null;index;uniqueIndex:uq_project_company" json:"project_id"`
	CompanyID uint `gorm:"not null;index;uniqueIndex:uq_project_company" json:"company_id"`

	Notes   string    `json:"notes"`
	AddedBy uint      `json:"added_by"`
	AddedAt time.Time `gorm:"autoCreateTime" json:"added_at"`

	// Relations
	Project Project `json:"-"`
	Company Company `json:"company,omitempty"`
}
