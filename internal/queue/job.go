// Package queue carries a JudgingJob from enqueue to Coordinator claim over
// a broker-agnostic mq.MessageQueue, with RabbitMQ as the primary backend
// and Kafka as an interchangeable alternate.
package queue

import (
	"encoding/json"

	appErr "judgecore/pkg/errors"
)

// JobTopic is the canonical queue topic judging jobs are published to and
// consumed from.
const JobTopic = "judging.jobs"

// JudgingJob is the canonical payload carried on the queue: everything the
// Coordinator needs to claim and run one submission, including the source
// text itself. The Coordinator judges the source stored on the Submission
// row it reads from the Repository, not this field.
type JudgingJob struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	ProblemID    string `json:"problem_id"`
	LanguageID   string `json:"language_id"`
	SourceCode   string `json:"source_code"`
}

// Validate reports whether every required field of the wire payload is
// present. A job failing this check is a permanent error per the judging
// error taxonomy: it cannot be retried into validity.
func (j JudgingJob) Validate() error {
	switch {
	case j.SubmissionID == "":
		return appErr.ValidationError("submission_id", "required")
	case j.ProblemID == "":
		return appErr.ValidationError("problem_id", "required")
	case j.LanguageID == "":
		return appErr.ValidationError("language_id", "required")
	}
	return nil
}

// Marshal serializes a JudgingJob into its canonical UTF-8 JSON wire form.
func Marshal(job JudgingJob) ([]byte, error) {
	return json.Marshal(job)
}

// Unmarshal parses the canonical wire form back into a JudgingJob. Callers
// must call Validate before acting on the result: a malformed payload is
// not itself an unmarshal error when the JSON is well-formed but a required
// field is empty.
func Unmarshal(data []byte) (JudgingJob, error) {
	var job JudgingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return JudgingJob{}, appErr.Wrapf(err, appErr.InvalidParams, "decode judging job failed")
	}
	return job, nil
}
