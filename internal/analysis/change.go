package analysis

import (
	"time"

	"github.com/hkschools/admission-monitor/internal/models"
)

// deadlineTolerance is the largest deadline shift that is not reported.
const deadlineTolerance = 24 * time.Hour

// HasChanged decides whether next differs materially from the stored status:
// the open flag flipped, or both carry deadlines more than 24 hours apart.
// Requirements and notes are not compared.
func HasChanged(prev models.ApplicationStatus, next models.AnalysisResult) bool {
	if prev.IsOpen != next.IsOpen {
		return true
	}
	if prev.Deadline != nil && next.Deadline != nil {
		diff := next.Deadline.Sub(*prev.Deadline)
		if diff < 0 {
			diff = -diff
		}
		return diff > deadlineTolerance
	}
	return false
}
