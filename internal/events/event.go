// Package events carries the core's best-effort status notifications onto
// the bus described by spec §6: subscribers are non-critical observers of a
// submission's lifecycle, never a dependency of the Repository write that
// is the system's actual source of truth.
package events

import "judgecore/internal/model"

// Topic names the three routing keys spec §6 enumerates.
type Topic string

const (
	TopicSubmissionQueued Topic = "submission.queued"
	TopicJudgingRequested Topic = "judging.requested"
	TopicSubmissionJudged Topic = "submission.judged"
)

// Event is the wire payload published on every topic above. Fields unused
// by a given topic are left zero; subscribers key off Topic to decide what
// they expect to find populated.
type Event struct {
	Topic        Topic         `json:"topic"`
	SubmissionID string        `json:"submission_id"`
	Status       model.Status  `json:"status,omitempty"`
	Verdict      model.Verdict `json:"verdict,omitempty"`
	TimeMs       int64         `json:"time_ms,omitempty"`
	MemoryKB     int64         `json:"memory_kb,omitempty"`
	CreatedAt    int64         `json:"created_at"`
}
