// Package snapshot captures one full marketplace snapshot: it enumerates the
// realms of every region, fetches each realm's listings under a timeout, and
// replaces the realm's dataset in the store.
package snapshot

import (
	"fmt"
	"time"
)

// Identifier returns the hour-granularity snapshot identifier for t, e.g.
// "2024-3-9-14". Fields are not zero-padded.
func Identifier(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d-%d", t.Year(), int(t.Month()), t.Day(), t.Hour())
}

// DatasetName returns the dataset holding one realm's listings for a
// snapshot, e.g. "2024-3-9-14-eu1234".
func DatasetName(snapshotID, regionType string, realmID int) string {
	return fmt.Sprintf("%s-%s%d", snapshotID, regionType, realmID)
}
