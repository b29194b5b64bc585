package domain

import "time"

// SubscriptionLevel is a named membership tier.
type SubscriptionLevel struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Duration     int    `json:"duration"`
	DurationUnit string `json:"duration_unit"`
	Status       string `json:"status"`
}

// LevelMemberCount is the persisted member counter for one level and status.
type LevelMemberCount struct {
	LevelID   int64     `json:"level_id"`
	Status    Status    `json:"status"`
	Count     int64     `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}
