package models

import "time"

// Counter outcome buckets for processed webhook deliveries.
const (
	CounterOutcomeProcessed = "processed"
	CounterOutcomeDuplicate = "duplicate"
	CounterOutcomeFailed    = "failed"
)

// EventCounter holds per-day webhook delivery counters, flushed in batches
// from Redis by the job manager.
type EventCounter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Day       string    `gorm:"type:varchar(10);not null;index:ux_event_counters_day_provider_outcome,unique,priority:1" json:"day"`
	Provider  string    `gorm:"type:varchar(20);not null;index:ux_event_counters_day_provider_outcome,unique,priority:2" json:"provider"`
	Outcome   string    `gorm:"type:varchar(20);not null;index:ux_event_counters_day_provider_outcome,unique,priority:3" json:"outcome"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
