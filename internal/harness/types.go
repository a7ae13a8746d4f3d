package harness

// RunTrace is one run launched by a tick.
type RunTrace struct {
	// Partitions are the run's targets in their string form.
	Partitions []string `json:"partitions"`
	// Backfill is set when the run targets more than one partition key.
	Backfill bool `json:"backfill"`
	// Tags omits the backfill id, which is a content hash.
	Tags map[string]string `json:"tags"`
}

// TickTrace is the observable outcome of one tick.
type TickTrace struct {
	Tick         int        `json:"tick"`
	EvaluationID int64      `json:"evaluation_id"`
	Timestamp    string     `json:"timestamp"`
	Requested    []string   `json:"requested"`
	Runs         []RunTrace `json:"runs"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass   bool        `json:"pass"`
	Ticks  []TickTrace `json:"ticks"`
	Errors []string    `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Ticks:  []TickTrace{},
		Errors: []string{},
	}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Tick returns the trace of tick n, counted from 1.
func (r *Result) Tick(n int) (TickTrace, bool) {
	if n < 1 || n > len(r.Ticks) {
		return TickTrace{}, false
	}
	return r.Ticks[n-1], true
}
