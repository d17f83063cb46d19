package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ServiceInfo{},
	&Campaign{},
	&ScanRecord{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// ServiceInfo describes the instance that owns the database
type ServiceInfo struct {
	gorm.Model
	Name        string `json:"name" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
	SchemaRev   int    `json:"schemaRev"`
}

func (*ServiceInfo) TableName() string {
	return "service_infos"
}

////////////////////////
// CAMPAIGNS
////////////////////////

// Campaign is one marker and video pairing. DocID is the public identifier
// carried in QR payloads.
type Campaign struct {
	ID          uint           `json:"-" gorm:"primarykey;autoIncrement"`
	DocID       string         `json:"id" gorm:"size:64;uniqueIndex"`
	Title       string         `json:"title" gorm:"size:255"`
	MarkerImage string         `json:"markerImage" gorm:"size:2048"`
	VideoURL    string         `json:"videoUrl" gorm:"size:2048"`
	Type        string         `json:"type" gorm:"size:16"`
	OwnerID     string         `json:"ownerId" gorm:"size:128;index"`
	Refs        datatypes.JSON `json:"refs"`
	CreatedAt   time.Time      `json:"createdAt" gorm:"index"`
	UpdatedAt   time.Time      `json:"-"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

func (*Campaign) TableName() string {
	return "campaigns"
}

// ScanRecord logs one QR scan checked against the active campaign
type ScanRecord struct {
	ID         uint      `json:"-" gorm:"primarykey;autoIncrement"`
	DocID      string    `json:"id" gorm:"size:64;uniqueIndex"`
	CampaignID string    `json:"campaignId" gorm:"size:64;index"`
	ScannedID  string    `json:"scannedId" gorm:"size:64"`
	Confirmed  bool      `json:"confirmed"`
	Reason     string    `json:"reason" gorm:"size:255"`
	Time       time.Time `json:"time" gorm:"index"`
}

func (*ScanRecord) TableName() string {
	return "scan_records"
}
