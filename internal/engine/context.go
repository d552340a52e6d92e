package engine

// LedgerKey identifies one sending course within one major.
type LedgerKey struct {
	CourseID int
	Major    string
}

// Ledger records which requirement cell each sending course was committed to.
// The first commitment wins: later claims for a different cell never replace
// an existing owner.
type Ledger struct {
	owners map[LedgerKey]string
}

func NewLedger() *Ledger {
	return &Ledger{owners: make(map[LedgerKey]string)}
}

func (l *Ledger) Owner(key LedgerKey) (string, bool) {
	cell, ok := l.owners[key]
	return cell, ok
}

// Draft returns an independent copy that can be committed later.
func (l *Ledger) Draft() *Ledger {
	d := &Ledger{owners: make(map[LedgerKey]string, len(l.owners))}
	for k, v := range l.owners {
		d.owners[k] = v
	}
	return d
}

func (l *Ledger) claim(key LedgerKey, templateCellID string) {
	if _, ok := l.owners[key]; ok {
		return
	}
	l.owners[key] = templateCellID
}

// Commit merges a draft into l.
func (l *Ledger) Commit(draft *Ledger) {
	for k, v := range draft.owners {
		l.claim(k, v)
	}
}

func (l *Ledger) Len() int {
	return len(l.owners)
}

// Entries returns a copy of every commitment.
func (l *Ledger) Entries() map[LedgerKey]string {
	out := make(map[LedgerKey]string, len(l.owners))
	for k, v := range l.owners {
		out[k] = v
	}
	return out
}

// SelectedCourse is a sending course the student completed or plans to take,
// with the labels of whatever asked for it.
type SelectedCourse struct {
	Course     CourseRef
	RequiredBy []string
}

// Context is the mutable state threaded through one evaluation pass.
type Context struct {
	Taken      map[int]SelectedCourse
	Ledger     *Ledger
	Agreements AgreementMap
}

func NewContext(taken map[int]SelectedCourse, agreements AgreementMap) *Context {
	if taken == nil {
		taken = make(map[int]SelectedCourse)
	}
	return &Context{Taken: taken, Ledger: NewLedger(), Agreements: agreements}
}

// NewPass returns a context sharing the inputs of c with an empty ledger.
func (c *Context) NewPass() *Context {
	return &Context{Taken: c.Taken, Ledger: NewLedger(), Agreements: c.Agreements}
}

func (c *Context) HasTaken(courseID int) bool {
	_, ok := c.Taken[courseID]
	return ok
}

func (c *Context) ledger() *Ledger {
	if c.Ledger == nil {
		c.Ledger = NewLedger()
	}
	return c.Ledger
}
