package report

import (
	"strings"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
)

// dateLayout is the civil date form used in snapshot keys and in the
// source's verification tags.
const dateLayout = "2006-01-02"

// verificationKeys are the tag keys that record a human re-check of an
// element, in the source's conventions. Prefixed check_date keys
// (check_date:currency:XBT and friends) are matched separately.
var verificationKeys = []string{"survey:date", "check_date"}

// verificationDate extracts the most recent verification date from an
// entity's tags, or nil if it was never verified. Unparseable values are
// ignored rather than treated as verification.
func verificationDate(e *domain.Entity) *time.Time {
	var latest *time.Time

	consider := func(raw string) {
		// Some mappers append a time or use a full timestamp; take the
		// date prefix.
		if len(raw) > len(dateLayout) {
			raw = raw[:len(dateLayout)]
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return
		}
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}

	for _, key := range verificationKeys {
		if v := e.Tag(key); v != "" {
			consider(v)
		}
	}
	for key, v := range e.Tags {
		if strings.HasPrefix(key, "check_date:") && v != "" {
			consider(v)
		}
	}
	return latest
}

// computeCounts aggregates the member set as of now.
func computeCounts(members []domain.Entity, now time.Time, createdAt map[int64]time.Time, upToDateWindow, activityWindow time.Duration) domain.ReportCounts {
	var counts domain.ReportCounts
	counts.TotalMembers = len(members)

	verifiedAfter := now.Add(-upToDateWindow)
	activeAfter := now.Add(-activityWindow)

	var verifiedSum int64
	var verifiedCount int64

	for i := range members {
		m := &members[i]

		vd := verificationDate(m)
		if vd != nil && vd.After(verifiedAfter) {
			counts.UpToDate++
		} else {
			counts.Outdated++
		}

		// Future-dated checks are mapper typos; they still count the
		// element as verified above but are excluded from the average.
		if vd != nil && !vd.After(now) {
			verifiedSum += vd.Unix()
			verifiedCount++
		}

		if m.Tag("payment:bitcoin") == "yes" {
			counts.Legacy++
		}
		if m.Tag("amenity") == "atm" {
			counts.TotalATMs++
		}
		if m.Tag("payment:onchain") == "yes" {
			counts.Onchain++
		}
		if m.Tag("payment:lightning") == "yes" {
			counts.Lightning++
		}
		if m.Tag("payment:lightning_contactless") == "yes" {
			counts.LightningContactless++
		}

		if created, ok := createdAt[m.ID]; ok && created.After(activeAfter) {
			counts.CreatedInWindow++
		}
		if m.LastSyncedAt.After(activeAfter) {
			counts.UpdatedInWindow++
		}
	}

	if verifiedCount > 0 {
		avg := time.Unix(verifiedSum/verifiedCount, 0).UTC()
		counts.AvgVerificationDate = &avg
	}
	return counts
}
