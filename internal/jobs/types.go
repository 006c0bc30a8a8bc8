package jobs

import "time"

// Outcome classifies what happened to one host during a run.
type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeAvailable   Outcome = "available"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeErrored     Outcome = "errored"
	outcomeCancelled   Outcome = "cancelled"
)

// Config controls how a Runner schedules work.
type Config struct {
	Concurrency  int     // workers resolving hosts at once, minimum 1
	RateLimit    float64 // requests per second across all workers, 0 disables
	MaxRedirects int     // hop bound handed to each resolver, 0 keeps the default
	Source       string  // name of the word list, attached to spans and logs
}

// Summary counts host outcomes for a run.
type Summary struct {
	RunID       string
	Total       int
	Skipped     int
	Available   int
	Unavailable int
	Errored     int
	Duration    time.Duration
}

// Processed returns the number of hosts that reached an outcome.
func (s Summary) Processed() int {
	return s.Skipped + s.Available + s.Unavailable + s.Errored
}

func (s *Summary) add(outcome Outcome) {
	switch outcome {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeAvailable:
		s.Available++
	case OutcomeUnavailable:
		s.Unavailable++
	case OutcomeErrored:
		s.Errored++
	}
}
