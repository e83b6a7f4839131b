package progress

import "sync"

// Row is the rendered state of one stage.
type Row struct {
	Stage   Stage  `json:"stage" yaml:"stage"`
	Label   string `json:"label" yaml:"label"`
	Status  Status `json:"status" yaml:"status"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Tracker holds the latest status per stage, in stage order. It is what a
// progress view renders: one row per stage, spinner for processing, check or
// cross for the terminal states.
//
// An update for a later stage implies that earlier stages which are still
// pending or processing completed. A stage that reached success or error is
// never changed again, and nothing moves after the first error.
type Tracker struct {
	mu      sync.Mutex
	rows    []Row
	history []Update
	failed  int // index of the failed stage, -1 if none
}

// NewTracker returns a tracker with every stage pending.
func NewTracker() *Tracker {
	rows := make([]Row, len(Stages))
	for i, s := range Stages {
		rows[i] = Row{Stage: s, Label: Label(s), Status: StatusPending}
	}
	return &Tracker{rows: rows, failed: -1}
}

// Attach subscribes the tracker to bus and returns the unsubscribe function.
func (t *Tracker) Attach(bus *Bus) func() {
	return bus.Subscribe(t.Apply)
}

// Apply records u. Updates for unknown stages are kept in History but do not
// change any row.
func (t *Tracker) Apply(u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append(t.history, u)

	idx := u.Stage.Index()
	if idx < 0 || t.failed >= 0 {
		return
	}

	for i := 0; i < idx; i++ {
		if !t.rows[i].Status.Terminal() {
			t.rows[i].Status = StatusSuccess
		}
	}

	row := &t.rows[idx]
	if row.Status.Terminal() {
		return
	}
	row.Status = u.Status
	row.Message = u.Message
	if u.Status == StatusError {
		t.failed = idx
	}
}

// Rows returns a copy of the per-stage state in stage order.
func (t *Tracker) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// History returns every update applied, in arrival order.
func (t *Tracker) History() []Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Update, len(t.history))
	copy(out, t.history)
	return out
}

// Done reports whether the final stage succeeded.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows[len(t.rows)-1].Status == StatusSuccess
}

// Failed returns the failed stage and its message.
func (t *Tracker) Failed() (Stage, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed < 0 {
		return "", "", false
	}
	r := t.rows[t.failed]
	return r.Stage, r.Message, true
}

// Finished reports whether the job reached a terminal outcome.
func (t *Tracker) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed >= 0 || t.rows[len(t.rows)-1].Status == StatusSuccess
}
