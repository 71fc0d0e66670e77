package scan

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nvr-ai/leafscan/images"
)

// Request is one photograph to measure.
type Request struct {
	// ScanID identifies the scan. A new ID is generated when empty.
	ScanID string
	// Image is the photograph, encoded or raw.
	Image images.Image
}

// NewScanID returns a sortable, unique scan identifier such as
// "20260118-093012-1f0c2a9b".
func NewScanID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}
