package entities

import "time"

// Subscription links a user to a region with an alert threshold and the
// channels they want notified on. Subscriptions are managed externally and
// read-only to the prediction engine. At most one exists per (user, region).
type Subscription struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	UserID   uint `gorm:"not null;uniqueIndex:idx_subscription_user_region,priority:1" json:"user_id"`
	RegionID uint `gorm:"not null;uniqueIndex:idx_subscription_user_region,priority:2;index" json:"region_id"`

	// Threshold is the minimum risk level that triggers an alert. Valid
	// values are MEDIUM, HIGH, and CRITICAL.
	Threshold RiskLevel `gorm:"size:10;not null" json:"threshold"`

	EmailEnabled bool   `gorm:"not null;default:false" json:"email_enabled"`
	SMSEnabled   bool   `gorm:"not null;default:false" json:"sms_enabled"`
	EmailAddress string `gorm:"size:320;default:''" json:"email_address"`
	PhoneNumber  string `gorm:"size:32;default:''" json:"phone_number"`

	Active    bool      `gorm:"not null;index" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Subscription) TableName() string {
	return "subscriptions"
}
