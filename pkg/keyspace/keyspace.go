// Package keyspace defines the deterministic Redis key and queue naming
// contract shared by the submission front-end and the workers. Both sides
// must derive names from these helpers; nothing else may mint keys.
package keyspace

import "time"

const (
	// Prefix namespaces every key owned by this service.
	Prefix = "optimus"

	queuePrefix   = Prefix + ":queue"
	resultPrefix  = Prefix + ":result"
	statusPrefix  = Prefix + ":status"
	controlPrefix = Prefix + ":control"

	// CompletionChannel is the pub/sub topic carrying completion events.
	CompletionChannel = Prefix + ":metrics:completions"

	// KeyTTL bounds how long result, status, and control records live.
	KeyTTL = 24 * time.Hour
)

// Queue returns the main FIFO queue for a language.
func Queue(lang string) string { return queuePrefix + ":" + lang }

// RetryQueue returns the retry lane for a language. Consumed only via a
// combined pop with strict priority to the main queue.
func RetryQueue(lang string) string { return Queue(lang) + ":retry" }

// DLQ returns the dead-letter lane for a language. Append-only; workers
// never consume it.
func DLQ(lang string) string { return Queue(lang) + ":dlq" }

// Result returns the key holding the JSON-encoded ExecutionResult for a job.
func Result(jobID string) string { return resultPrefix + ":" + jobID }

// Status returns the key mirroring the job's JobStatus.
func Status(jobID string) string { return statusPrefix + ":" + jobID }

// Control returns the key holding the job's cancellation flag.
func Control(jobID string) string { return controlPrefix + ":" + jobID }
