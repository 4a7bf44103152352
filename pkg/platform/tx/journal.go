package tx

// Journal records compensating steps for mutations made by in-memory stores
// inside one transaction. Rollback replays them newest first, restoring every
// store touched by the transaction to its state before the first mutation.
//
// A nil *Journal is valid and records nothing; stores used outside a
// transaction write through directly.
type Journal struct {
	undo []func()
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Record appends a compensating step.
func (j *Journal) Record(undo func()) {
	if j == nil || undo == nil {
		return
	}
	j.undo = append(j.undo, undo)
}

// Len returns the number of recorded steps.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	return len(j.undo)
}

// Rollback applies recorded steps in reverse order and clears the journal.
func (j *Journal) Rollback() {
	if j == nil {
		return
	}
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// Commit discards recorded steps.
func (j *Journal) Commit() {
	if j == nil {
		return
	}
	j.undo = nil
}
