package models

import "time"

/************************************************
/**** MARK: RUN ITEM STATUS ****/
/************************************************/
const RUN_ITEM_STATUS_QUEUED = "queued"
const RUN_ITEM_STATUS_SENT = "sent"
const RUN_ITEM_STATUS_FAILED = "failed"
const RUN_ITEM_STATUS_SIMULATED = "simulated"

// CampaignRunItem: uma linha por (run, contato).
type CampaignRunItem struct {
	ID         int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	TenantID   int64      `gorm:"not null;index" json:"tenantId"`
	RunID      string     `gorm:"not null;unique_index:ux_campaign_run_contact" json:"runId"`
	CampaignID int64      `gorm:"not null;index" json:"campaignId"`
	ContactID  string     `gorm:"not null;unique_index:ux_campaign_run_contact" json:"contactId"`
	Status     string     `gorm:"not null;default:'queued'" json:"status"`
	Attempts   int        `gorm:"not null;default:0" json:"attempts"`
	LastError  string     `gorm:"type:text" json:"lastError,omitempty"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
	CreatedAt  *time.Time `json:"-"`
	UpdatedAt  *time.Time `json:"-"`
}

// GroupCampaignRunItem: uma linha por (run, grupo).
type GroupCampaignRunItem struct {
	ID              int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	TenantID        int64      `gorm:"not null;index" json:"tenantId"`
	RunID           string     `gorm:"not null;unique_index:ux_group_run_group" json:"runId"`
	GroupCampaignID int64      `gorm:"not null;index" json:"groupCampaignId"`
	GroupID         string     `gorm:"not null;unique_index:ux_group_run_group" json:"groupId"`
	Status          string     `gorm:"not null;default:'queued'" json:"status"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	LastError       string     `gorm:"type:text" json:"lastError,omitempty"`
	SentAt          *time.Time `json:"sentAt,omitempty"`
	CreatedAt       *time.Time `json:"-"`
	UpdatedAt       *time.Time `json:"-"`
}
