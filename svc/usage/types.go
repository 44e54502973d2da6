package usage

import (
	"time"

	"github.com/dmitrymomot/entitle/svc/plan"
)

// Metadata accompanies a recorded action.
type Metadata struct {
	Tokens     int64
	Storage    int64
	Attributes map[string]string
}

// Event is one metered action.
type Event struct {
	Amount     int64             `json:"amount" bson:"amount"`
	Tokens     int64             `json:"tokens,omitempty" bson:"tokens,omitempty"`
	Storage    int64             `json:"storage,omitempty" bson:"storage,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
	At         time.Time         `json:"at" bson:"at"`
}

// Record holds one user's events for one calendar day (UTC).
type Record struct {
	UserID              string    `json:"userId"`
	Date                time.Time `json:"date"`
	ContentGenerations  []Event   `json:"contentGenerations"`
	AudioTranscriptions []Event   `json:"audioTranscriptions"`
	ImageGenerations    []Event   `json:"imageGenerations"`
	APICalls            []Event   `json:"apiCalls"`
	TotalTokensUsed     int64     `json:"totalTokensUsed"`
	TotalStorageUsed    int64     `json:"totalStorageUsed"`
}

// Events returns the event list for m.
func (r *Record) Events(m plan.Metric) []Event {
	switch m {
	case plan.ContentGenerations:
		return r.ContentGenerations
	case plan.AudioTranscriptions:
		return r.AudioTranscriptions
	case plan.ImageGenerations:
		return r.ImageGenerations
	case plan.APICalls:
		return r.APICalls
	}
	return nil
}

// Count sums event amounts for m.
func (r *Record) Count(m plan.Metric) int64 {
	var n int64
	for _, e := range r.Events(m) {
		n += e.Amount
	}
	return n
}

func (r *Record) append(m plan.Metric, e Event) {
	switch m {
	case plan.ContentGenerations:
		r.ContentGenerations = append(r.ContentGenerations, e)
	case plan.AudioTranscriptions:
		r.AudioTranscriptions = append(r.AudioTranscriptions, e)
	case plan.ImageGenerations:
		r.ImageGenerations = append(r.ImageGenerations, e)
	case plan.APICalls:
		r.APICalls = append(r.APICalls, e)
	}
	r.TotalTokensUsed += e.Tokens
	r.TotalStorageUsed += e.Storage
}

// Summary is the usage of one user in the current billing period.
type Summary struct {
	PeriodStart      time.Time             `json:"periodStart"`
	Usage            map[plan.Metric]int64 `json:"usage"`
	TotalTokensUsed  int64                 `json:"totalTokensUsed"`
	TotalStorageUsed int64                 `json:"totalStorageUsed"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PeriodStart returns the first instant of the calendar month containing t, in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
