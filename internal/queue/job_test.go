package queue

import (
	"strings"
	"testing"
)

func TestJudgingJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     JudgingJob
		wantErr bool
	}{
		{
			name: "valid",
			job: JudgingJob{
				SubmissionID: "550e8400-e29b-41d4-a716-446655440000",
				UserID:       "550e8400-e29b-41d4-a716-446655440001",
				ProblemID:    "550e8400-e29b-41d4-a716-446655440002",
				LanguageID:   "cpp17",
				SourceCode:   "int main(){}",
			},
			wantErr: false,
		},
		{name: "missing submission id", job: JudgingJob{ProblemID: "p1", LanguageID: "cpp17"}, wantErr: true},
		{name: "missing problem id", job: JudgingJob{SubmissionID: "s1", LanguageID: "cpp17"}, wantErr: true},
		{name: "missing language id", job: JudgingJob{SubmissionID: "s1", ProblemID: "p1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	job := JudgingJob{
		SubmissionID: "550e8400-e29b-41d4-a716-446655440000",
		UserID:       "550e8400-e29b-41d4-a716-446655440001",
		ProblemID:    "550e8400-e29b-41d4-a716-446655440002",
		LanguageID:   "python3",
		SourceCode:   "print('hi')",
	}
	data, err := Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got != job {
		t.Errorf("round trip = %+v, want %+v", got, job)
	}
}

func TestMarshal_CanonicalKeys(t *testing.T) {
	job := JudgingJob{SubmissionID: "s1", UserID: "u1", ProblemID: "p1", LanguageID: "l1", SourceCode: "c1"}
	data, err := Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, key := range []string{`"submission_id"`, `"user_id"`, `"problem_id"`, `"language_id"`, `"source_code"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("wire form missing canonical key %s: %s", key, data)
		}
	}
}

func TestUnmarshal_InvalidJSON(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
