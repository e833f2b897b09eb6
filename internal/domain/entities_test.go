package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLanguage(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Language
	}{
		{"python", LangPython},
		{"PYTHON", LangPython},
		{"Java", LangJava},
		{"rust", LangRust},
	} {
		got, err := ParseLanguage(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseLanguage("cobol")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
	_, err = ParseLanguage("")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestLanguageUnmarshalRejectsUnknown(t *testing.T) {
	var job JobRequest
	err := json.Unmarshal([]byte(`{"id":"`+uuid.NewString()+`","language":"brainfuck"}`), &job)
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestJobRequestMaxScore(t *testing.T) {
	job := JobRequest{TestCases: []TestCase{
		{ID: 1, Weight: 10},
		{ID: 2, Weight: 20},
		{ID: 3, Weight: 5},
	}}
	assert.Equal(t, uint32(35), job.MaxScore())
	assert.Equal(t, uint32(0), JobRequest{}.MaxScore())
}

func TestJobRequestTimeout(t *testing.T) {
	job := JobRequest{TimeoutMS: 2500}
	assert.Equal(t, 2500*time.Millisecond, job.Timeout())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCancelled.Terminal())
	assert.False(t, JobQueued.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.False(t, JobTimedOut.Terminal())
}

func TestValidationErrorUnwrapsToInvalidArgument(t *testing.T) {
	err := NewValidationError("source_empty", "source code must be non-empty")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "source_empty")
}

func TestJobRequestRoundTrip(t *testing.T) {
	job := JobRequest{
		ID:         uuid.New(),
		Language:   LangRust,
		SourceCode: "fn main() {}",
		TestCases:  []TestCase{{ID: 1, Input: "1\n", ExpectedOutput: "1", Weight: 10}},
		TimeoutMS:  5000,
		Metadata:   DefaultJobMetadata(),
	}
	b, err := json.Marshal(job)
	require.NoError(t, err)
	var back JobRequest
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, job, back)
}
