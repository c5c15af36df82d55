package entities

import "time"

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Alert event statuses. The dispatcher drives the state machine
// pending → inflight → sent|failed; a transient failure below the attempt
// ceiling releases the event back to pending.
const (
	AlertStatusPending  = "pending"
	AlertStatusInflight = "inflight"
	AlertStatusSent     = "sent"
	AlertStatusFailed   = "failed"
)

// AlertEvent is one notification attempt tied to a subscription and the
// prediction that triggered it. At most one exists per
// (subscription, prediction, channel), which is what makes alert issuance
// idempotent under concurrent re-evaluation.
type AlertEvent struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	SubscriptionID uint   `gorm:"not null;uniqueIndex:idx_alert_event_key,priority:1;index" json:"subscription_id"`
	PredictionID   string `gorm:"size:36;not null;uniqueIndex:idx_alert_event_key,priority:2" json:"prediction_id"`
	Channel        string `gorm:"size:10;not null;uniqueIndex:idx_alert_event_key,priority:3" json:"channel"`

	Status    string     `gorm:"size:10;not null;index" json:"status"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
	LastError string     `gorm:"size:1000;default:''" json:"last_error"`
	Recipient string     `gorm:"size:320;not null" json:"recipient"`
	QueuedAt  time.Time  `gorm:"not null;index:idx_alert_event_sub_queued,priority:2" json:"queued_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`

	Subscription Subscription `gorm:"foreignKey:SubscriptionID;constraint:OnDelete:CASCADE" json:"-"`
	Prediction   Prediction   `gorm:"foreignKey:PredictionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (AlertEvent) TableName() string {
	return "alert_events"
}
