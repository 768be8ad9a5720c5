package domain

import "time"

// UpsertCounts reports what a batch upsert did with each record.
type UpsertCounts struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
}

func (c *UpsertCounts) Add(o UpsertCounts) {
	c.Inserted += o.Inserted
	c.Updated += o.Updated
	c.Unchanged += o.Unchanged
	c.Skipped += o.Skipped
	c.Errored += o.Errored
}

// Changed reports whether the batch wrote anything new.
func (c UpsertCounts) Changed() bool {
	return c.Inserted > 0 || c.Updated > 0
}

// UpsertOutcome is the per-record result of a store write.
type UpsertOutcome int

const (
	OutcomeInserted UpsertOutcome = iota
	OutcomeUpdated
	OutcomeUnchanged
)

type SyncResult struct {
	JobID    string    `json:"job_id"`
	Route    Route     `json:"route"`
	Date     string    `json:"date"`
	Sources  []Source  `json:"sources"`
	Partial  bool      `json:"partial"`
	Message  string    `json:"message"`
	Started  time.Time `json:"started_at"`
	Finished time.Time `json:"finished_at"`
	UpsertCounts
}
