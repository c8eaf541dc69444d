package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDGenerator derives job identifiers from the wall clock plus a short random
// suffix, so two submissions in the same millisecond still get distinct ids.
type IDGenerator struct {
	now    func() time.Time
	suffix func() string
}

// NewIDGenerator returns a generator backed by time.Now and random UUIDs.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now, suffix: randomSuffix}
}

// NewJobID returns an identifier of the form job_<unix-millis>_<8 hex>.
func (g *IDGenerator) NewJobID() string {
	now, suffix := time.Now, randomSuffix
	if g != nil {
		if g.now != nil {
			now = g.now
		}
		if g.suffix != nil {
			suffix = g.suffix
		}
	}
	return fmt.Sprintf("job_%d_%s", now().UnixMilli(), suffix())
}

func randomSuffix() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:8]
}
