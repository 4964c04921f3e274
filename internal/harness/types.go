package harness

// StepResult records what one scenario step produced: the rendered
// statement and either its rows, its single value, or the error.
type StepResult struct {
	Seq    int64            `json:"seq"`
	Report string           `json:"report"`
	Action string           `json:"action"`
	SQL    string           `json:"sql,omitempty"`
	Params []any            `json:"params,omitempty"`
	Rows   []map[string]any `json:"rows,omitempty"`
	Value  any              `json:"value,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one entry per step, in order.
	Trace []StepResult `json:"trace"`

	// Errors contains failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace, numbering it.
func (r *Result) AddStep(step StepResult) {
	step.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, step)
}
