package domain

import "time"

// ReportCounts are the aggregate measurements taken for one area on one
// date. All counts are over the area's non-deleted members at compute
// time.
type ReportCounts struct {
	// TotalMembers is the number of non-deleted member entities.
	TotalMembers int `json:"total_members"`

	// UpToDate counts members verified within the configured window
	// (survey/check-date tags).
	UpToDate int `json:"up_to_date"`

	// Outdated counts members never verified, or verified before the
	// window opened.
	Outdated int `json:"outdated"`

	// Legacy counts members still carrying the deprecated payment tag
	// instead of the structured ones.
	Legacy int `json:"legacy"`

	// TotalATMs counts members that are ATMs rather than venues.
	TotalATMs int `json:"total_atms"`

	// Onchain, Lightning and LightningContactless count members
	// advertising each structured payment method.
	Onchain              int `json:"onchain"`
	Lightning            int `json:"lightning"`
	LightningContactless int `json:"lightning_contactless"`

	// CreatedInWindow and UpdatedInWindow count members whose first or
	// latest revision was committed within the trailing activity window.
	CreatedInWindow int `json:"created_in_window"`
	UpdatedInWindow int `json:"updated_in_window"`

	// AvgVerificationDate is the mean of member verification dates,
	// ignoring future-dated checks. Nil when no member has one.
	AvgVerificationDate *time.Time `json:"avg_verification_date,omitempty"`
}

// ReportSnapshot is one immutable (area, date) measurement.
//
// Snapshots for past dates are never recomputed; only the current day's
// row may be replaced. They deliberately reflect the data as it stood
// when generated, even if later syncs rewrite the same members.
type ReportSnapshot struct {
	AreaID int64

	// Date is the civil date of the measurement, UTC, "2006-01-02".
	Date string

	Counts ReportCounts

	GeneratedAt time.Time
}
