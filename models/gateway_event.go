package models

import "time"

type EventOutcome string

const (
	EventOutcomeApplied   EventOutcome = "applied"
	EventOutcomeDuplicate EventOutcome = "duplicate"
	EventOutcomeStale     EventOutcome = "stale"
	EventOutcomeIgnored   EventOutcome = "ignored"
	EventOutcomeUnknown   EventOutcome = "unknown_attempt"
)

// GatewayEvent records every verified webhook delivery that reached the
// ledger, keyed by the gateway's event id.
type GatewayEvent struct {
	EventID          string        `gorm:"type:varchar(255);primaryKey" json:"eventId"`
	Type             string        `gorm:"type:varchar(100);not null" json:"type"`
	GatewayReference string        `gorm:"type:varchar(255);index" json:"gatewayReference"`
	Status           AttemptStatus `gorm:"type:varchar(20)" json:"status"`
	OccurredAt       time.Time     `json:"occurredAt"`
	Outcome          EventOutcome  `gorm:"type:varchar(20);not null" json:"outcome"`
	Payload          string        `gorm:"type:jsonb" json:"-"`
	ReceivedAt       time.Time     `gorm:"autoCreateTime" json:"receivedAt"`
}
