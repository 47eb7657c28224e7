package status

import (
	"sort"
	"strings"
	"time"
)

// effectiveTime is UpdatedAt for a processing job and LastRunAt otherwise.
func effectiveTime(j ScheduledJob) time.Time {
	if j.IsProcessing {
		return j.UpdatedAt
	}
	return j.LastRunAt
}

func isRestartJob(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "workshop") || strings.Contains(n, "daily")
}

func restartType(name string) string {
	if strings.Contains(strings.ToLower(name), "workshop") {
		return RestartWorkshop
	}
	return RestartDaily
}

// Classify returns the most recent restart-related job, if any.
func Classify(jobs []ScheduledJob) (ScheduledJob, bool) {
	relevant := make([]ScheduledJob, 0, len(jobs))
	for _, j := range jobs {
		if isRestartJob(j.Name) {
			relevant = append(relevant, j)
		}
	}
	if len(relevant) == 0 {
		return ScheduledJob{}, false
	}
	sort.SliceStable(relevant, func(a, b int) bool {
		return effectiveTime(relevant[a]).After(effectiveTime(relevant[b]))
	})
	return relevant[0], true
}
