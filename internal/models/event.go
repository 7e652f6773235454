package models

import "time"

// ClickEvent is an accepted click, persisted append-only. Rejected clicks
// (duplicates, blocked fraud) never become rows here; they only reach the
// security audit log.
type ClickEvent struct {
	ID         int64     `json:"id"`
	CampaignID int       `json:"campaign_id"`
	IPAddress  string    `json:"ip_address"`
	ClickedAt  time.Time `json:"clicked_at"`
}

// ReachEvent is an accepted view/impression, at most one per
// (campaign, IP, calendar day).
type ReachEvent struct {
	ID         int64     `json:"id"`
	CampaignID int       `json:"campaign_id"`
	IPAddress  string    `json:"ip_address"`
	ViewedAt   time.Time `json:"viewed_at"`
}

// FraudVerdict is the transient evaluation of a single click. It is returned
// to the caller and, for suspicious clicks, copied into the audit log, but it
// is never stored as an entity of its own.
type FraudVerdict struct {
	IsDuplicate bool `json:"is_duplicate"`
	IsFraud     bool `json:"is_fraud"`
	// FraudScore is in [0,100]. A fraudulent click at or above
	// BlockingScore is rejected outright.
	FraudScore int      `json:"fraud_score"`
	Indicators []string `json:"indicators"`
	// ClickCountRecent is the number of clicks from this IP on this
	// campaign inside the rapid-click window.
	ClickCountRecent int `json:"click_count_recent"`
	// SessionClicks is the number of clicks from this IP on this campaign
	// in the last hour.
	SessionClicks int `json:"session_clicks"`
	// TotalClicks is the campaign-wide click count in the last hour,
	// across all IPs.
	TotalClicks   int  `json:"total_clicks"`
	ShouldSuspend bool `json:"should_suspend"`
}

// BlockingScore is the fraud score at or above which a fraudulent click is
// rejected instead of being logged with a warning.
const BlockingScore = 50

// Blocked reports whether the click must be rejected: either a duplicate or
// fraud at blocking severity.
func (v FraudVerdict) Blocked() bool {
	return v.IsDuplicate || (v.IsFraud && v.FraudScore >= BlockingScore)
}
