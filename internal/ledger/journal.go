package ledger

// Journal collects inverse operations for every mutation made while it is
// open. Journals nest: committing an inner journal hands its entries to the
// enclosing one, so an outer Rollback still undoes them.
type Journal struct {
	ledger *Ledger
	parent *Journal
	undo   []func()
	done   bool
}

// Begin opens a journal on top of the current one, if any. The usual shape is
//
//	j := l.Begin()
//	defer j.Rollback()
//	...
//	j.Commit()
//
// There is one journal stack per ledger. Callers that write from several
// goroutines must serialize their journals themselves; the settlement facade
// does so for everything it exposes.
func (l *Ledger) Begin() *Journal {
	l.mu.Lock()
	defer l.mu.Unlock()

	j := &Journal{ledger: l, parent: l.journal}
	l.journal = j
	return j
}

// OnRollback registers fn with the open journal. Components keeping state
// next to the ledger use it to make their own mutations reversible. fn runs
// with the ledger locked and must not call back into the Ledger. Without an
// open journal the call is a no-op.
func (l *Ledger) OnRollback(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordUndo(fn)
}

// InJournal reports whether a journal is open.
func (l *Ledger) InJournal() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.journal != nil
}

func (l *Ledger) recordUndo(fn func()) {
	if l.journal == nil {
		return
	}
	l.journal.undo = append(l.journal.undo, fn)
}

// Commit keeps the journal's mutations. Calling it after Commit or Rollback
// does nothing.
func (j *Journal) Commit() {
	l := j.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if j.done {
		return
	}
	j.done = true
	if j.parent != nil {
		j.parent.undo = append(j.parent.undo, j.undo...)
	}
	j.undo = nil
	l.journal = j.parent
}

// Rollback reverts every mutation recorded since Begin, newest first.
func (j *Journal) Rollback() {
	l := j.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if j.done {
		return
	}
	j.done = true
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
	l.journal = j.parent
}

// Len is the number of inverse operations recorded so far.
func (j *Journal) Len() int {
	j.ledger.mu.RLock()
	defer j.ledger.mu.RUnlock()
	return len(j.undo)
}
