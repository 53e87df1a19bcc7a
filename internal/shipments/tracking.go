package shipments

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

const trackingPrefix = "LM"

var trackingEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewTrackingID returns a short printable id such as LM7KQ2X9ZB.
func NewTrackingID() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return trackingPrefix + trackingEncoding.EncodeToString(buf), nil
}

// MatchesLabel reports whether a scanned code is the shipment barcode or
// tracking id. Comparison ignores case and surrounding space; partial
// matches never count.
func MatchesLabel(scanned string, barcode *string, trackingID string) bool {
	scanned = strings.TrimSpace(scanned)
	if scanned == "" {
		return false
	}
	if barcode != nil {
		if b := strings.TrimSpace(*barcode); b != "" && strings.EqualFold(scanned, b) {
			return true
		}
	}
	return trackingID != "" && strings.EqualFold(scanned, strings.TrimSpace(trackingID))
}
