package engine

import (
	"fmt"

	"github.com/LehuyH/transfer-helper/internal/domain"
)

const advisementPickN = "NFollowing"

// SectionInstruction is either Pick(quota) or All.
type SectionInstruction struct {
	pick *Quota
}

func PickInstruction(q Quota) SectionInstruction {
	return SectionInstruction{pick: &q}
}

func AllInstruction() SectionInstruction {
	return SectionInstruction{}
}

func (i SectionInstruction) PickQuota() (Quota, bool) {
	if i.pick == nil {
		return Quota{}, false
	}
	return *i.pick, true
}

func (i SectionInstruction) IsAll() bool {
	return i.pick == nil
}

// Section is a lettered list of agreement rows evaluated under one local
// instruction. Each row holds parallel cells.
type Section struct {
	Letter      string
	Rows        [][]*Cell
	Instruction SectionInstruction
	Required    bool
	Selected    bool
	// Max is what the section can structurally reach given the known
	// articulations.
	Max Tally

	forced bool
}

type SectionFulfillment struct {
	Letter    string
	Fulfilled bool
	Filled    Tally
	Max       Tally
	// Target is the capped amount compared against Filled.
	Target float64
}

type SectionTally struct {
	Tally
	Contributing []int
}

// Readiness is a progress prompt; Message is empty when Ready.
type Readiness struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

func NewSection(raw domain.RawSection, force RequirementStatus) *Section {
	s := &Section{Instruction: AllInstruction()}
	for _, adv := range raw.SectionAdvisements {
		if adv.Type == advisementPickN {
			s.Instruction = PickInstruction(Quota{Amount: adv.Amount, Type: ParseAmountType(adv.AmountUnitType)})
			break
		}
	}

	cellForce := force
	if !s.Instruction.IsAll() {
		cellForce = Neutral
	}
	for _, row := range raw.Agreements {
		cells := make([]*Cell, 0, len(row.Courses))
		for _, rc := range row.Courses {
			cells = append(cells, NewCell(rc, cellForce))
		}
		s.Rows = append(s.Rows, cells)
	}

	s.forced = force == Required
	s.UpdateRequiredCells(nil)
	return s
}

// Cells flattens the rows in order.
func (s *Section) Cells() []*Cell {
	var out []*Cell
	for _, row := range s.Rows {
		out = append(out, row...)
	}
	return out
}

func (s *Section) refreshSelection() {
	s.Required = s.forced
	for _, c := range s.Cells() {
		if c.Required == Required || c.Selected {
			s.Required = true
			break
		}
	}
	s.Selected = s.Required
}

// UpdateRequiredCells recomputes the achievable maxima. Without agreement
// data every cell counts; with it, cells lacking any known articulation are
// left out.
func (s *Section) UpdateRequiredCells(agreements AgreementMap) {
	s.refreshSelection()

	var reach Tally
	for _, c := range s.Cells() {
		if agreements.Loaded() {
			record, ok := agreements.Lookup(c.TemplateCellID)
			if !ok || !record.HasArticulation() {
				continue
			}
		}
		reach = reach.Add(c.Tally())
	}
	s.Max = reach
}

// FilledData evaluates every cell, marks fulfilled cells selected and sums
// what they contribute.
func (s *Section) FilledData(ctx *Context) SectionTally {
	var out SectionTally
	for _, c := range s.Cells() {
		f := c.IsFulfilled(ctx)
		if !f.Fulfilled {
			continue
		}
		c.Selected = true
		out.Tally = out.Tally.Add(c.Tally())
		out.Contributing = append(out.Contributing, f.Contributing...)
	}
	s.refreshSelection()
	return out
}

func (s *Section) target() (AmountType, float64) {
	if q, ok := s.Instruction.PickQuota(); ok {
		return q.Type, min(q.Amount, s.Max.Of(q.Type))
	}
	return AmountClass, float64(s.Max.Classes)
}

func (s *Section) IsFulfilled(ctx *Context) SectionFulfillment {
	s.UpdateRequiredCells(ctx.Agreements)
	filled := s.FilledData(ctx)
	typ, target := s.target()
	return SectionFulfillment{
		Letter:    s.Letter,
		Fulfilled: filled.Of(typ) >= target,
		Filled:    filled.Tally,
		Max:       s.Max,
		Target:    target,
	}
}

// SmartPickCellIDs selects cells that have exactly one way to be satisfied.
// It only acts on required sections unless forced, and only when the picks
// stay within the section's quota.
func (s *Section) SmartPickCellIDs(agreements AgreementMap, force bool) []string {
	if !s.Required && !force {
		return nil
	}

	var picked []*Cell
	var total Tally
	for _, c := range s.Cells() {
		if c.Selected || c.Required == Required {
			continue
		}
		record, ok := agreements.Lookup(c.TemplateCellID)
		if ok && len(record.PickOneGroups) == 1 {
			picked = append(picked, c)
			total = total.Add(c.Tally())
		}
	}
	if len(picked) == 0 {
		return nil
	}
	if q, ok := s.Instruction.PickQuota(); ok && total.Of(q.Type) > q.Amount {
		return nil
	}

	ids := make([]string, 0, len(picked))
	for _, c := range picked {
		c.Selected = true
		c.Required = Required
		ids = append(ids, c.TemplateCellID)
	}
	s.UpdateRequiredCells(agreements)
	return ids
}

func (s *Section) ReadyCheck(ctx *Context) Readiness {
	q, ok := s.Instruction.PickQuota()
	if !ok {
		return Readiness{Ready: true}
	}
	s.UpdateRequiredCells(ctx.Agreements)
	filled := s.FilledData(ctx)
	target := min(q.Amount, s.Max.Of(q.Type))
	have := filled.Of(q.Type)
	if have >= target {
		return Readiness{Ready: true}
	}
	return Readiness{
		Message: fmt.Sprintf("Please select %s more %s in section %s", formatAmount(target-have), q.Type.noun(), s.Letter),
	}
}

// RequiredCellIDs lists cells that are required or selected.
func (s *Section) RequiredCellIDs() []string {
	var ids []string
	for _, c := range s.Cells() {
		if c.Required == Required || c.Selected {
			ids = append(ids, c.TemplateCellID)
		}
	}
	return ids
}

// fullyArticulated reports whether every cell has at least one known
// articulation.
func (s *Section) fullyArticulated(agreements AgreementMap) bool {
	cells := s.Cells()
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		record, ok := agreements.Lookup(c.TemplateCellID)
		if !ok || !record.HasArticulation() {
			return false
		}
	}
	return true
}

// Describe renders the instruction, e.g. "Pick a total of 3 unit(s) from A".
func (s *Section) Describe() string {
	if q, ok := s.Instruction.PickQuota(); ok {
		return fmt.Sprintf("Pick a total of %s from %s", q, s.Letter)
	}
	return "Complete " + s.Letter
}
