package engine

import (
	"fmt"
	"strings"

	"github.com/LehuyH/transfer-helper/internal/domain"
)

type Combinator string

const (
	And Combinator = "And"
	Or  Combinator = "Or"
)

const (
	instructionNFromArea     = "NFromArea"
	advisementDifferentAreas = "NInNDifferentAreas"
	advisementAdditional     = "Additional"
)

// AreaQuota asks for Amount in each of at least SectionCount distinct
// sections.
type AreaQuota struct {
	Quota
	SectionCount int
}

// GroupInstruction combines sections with And/Or. The primary rule is either
// a pick quota or nothing; area and additional quotas are independent extra
// constraints.
type GroupInstruction struct {
	Combinator Combinator
	pick       *Quota
	area       *AreaQuota
	additional *Quota
}

func NewGroupInstruction(c Combinator) GroupInstruction {
	return GroupInstruction{Combinator: c}
}

func (i GroupInstruction) WithPick(q Quota) GroupInstruction {
	i.pick = &q
	return i
}

func (i GroupInstruction) WithArea(a AreaQuota) GroupInstruction {
	i.area = &a
	return i
}

func (i GroupInstruction) WithAdditional(q Quota) GroupInstruction {
	i.additional = &q
	return i
}

func (i GroupInstruction) PickQuota() (Quota, bool) {
	if i.pick == nil {
		return Quota{}, false
	}
	return *i.pick, true
}

func (i GroupInstruction) Area() (AreaQuota, bool) {
	if i.area == nil {
		return AreaQuota{}, false
	}
	return *i.area, true
}

func (i GroupInstruction) Additional() (Quota, bool) {
	if i.additional == nil {
		return Quota{}, false
	}
	return *i.additional, true
}

// Group is a named set of sections under one instruction.
type Group struct {
	Name        string
	SchoolName  string
	MajorName   string
	Attributes  []string
	Required    RequirementStatus
	Instruction GroupInstruction
	Sections    []*Section
}

type GroupFulfillment struct {
	Fulfilled bool
	Messages  []string
	Sections  []SectionFulfillment
}

func NewGroup(name string, raw domain.RawGroup, schoolName, majorName string) *Group {
	g := &Group{
		Name:        name,
		SchoolName:  schoolName,
		MajorName:   majorName,
		Attributes:  raw.GroupAttributes,
		Required:    inferGroupRequirement(name, raw.GroupAttributes),
		Instruction: parseGroupInstruction(raw),
	}

	pick, hasPick := g.Instruction.PickQuota()
	_, hasArea := g.Instruction.Area()
	// Only a plain And group names exactly which sections apply.
	force := Neutral
	if !hasPick && !hasArea && g.Instruction.Combinator == And {
		force = g.Required
	}
	for i, rs := range raw.Sections {
		s := NewSection(rs, force)
		if hasPick && s.Instruction.IsAll() {
			s.Instruction = PickInstruction(pick)
		}
		s.Letter = sectionLetter(i)
		g.Sections = append(g.Sections, s)
	}
	return g
}

func parseGroupInstruction(raw domain.RawGroup) GroupInstruction {
	inst := NewGroupInstruction(And)
	if gi := raw.GroupInstruction; gi != nil {
		if gi.Conjunction == string(Or) {
			inst.Combinator = Or
		}
		if gi.Type == instructionNFromArea || gi.Type == "" {
			inst = inst.WithPick(Quota{Amount: gi.Amount, Type: ParseAmountType(gi.AmountUnitType)})
		}
	}

	for _, adv := range raw.GroupAdvisements {
		q := Quota{Amount: adv.Amount, Type: ParseAmountType(adv.AmountUnitType)}
		switch {
		case adv.Type == advisementDifferentAreas:
			count := adv.AreaCount
			if count <= 0 {
				count = 1
			}
			inst = inst.WithArea(AreaQuota{Quota: q, SectionCount: count})
		case strings.HasPrefix(adv.Type, advisementAdditional):
			inst = inst.WithAdditional(q)
		}
	}
	return inst
}

func inferGroupRequirement(name string, attrs []string) RequirementStatus {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "recommended"):
		return NotRequired
	case strings.Contains(lower, "require"),
		strings.Contains(name, "DEFAULT"),
		strings.Contains(lower, "core"),
		strings.Contains(lower, "prep"):
		return Required
	}
	for _, a := range attrs {
		la := strings.ToLower(a)
		if strings.Contains(la, "require") && !strings.Contains(la, "recommended") {
			return Required
		}
	}
	return NotRequired
}

func sectionLetter(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("S%d", i+1)
}

// IsFulfilled evaluates every section once, then applies the group's rules.
// Messages explain each rule that is not yet met.
func (g *Group) IsFulfilled(ctx *Context) GroupFulfillment {
	results := make([]SectionFulfillment, len(g.Sections))
	for i, s := range g.Sections {
		results[i] = s.IsFulfilled(ctx)
	}

	var messages []string
	var fulfilled bool
	area, hasArea := g.Instruction.Area()
	if _, hasPick := g.Instruction.PickQuota(); hasArea && !hasPick {
		// The area quota is the primary rule when no pick is given.
		fulfilled = evaluateArea(area, results, &messages)
	} else {
		fulfilled = g.evaluatePrimary(results, &messages)
		if hasArea {
			fulfilled = evaluateArea(area, results, &messages) && fulfilled
		}
	}
	if extra, ok := g.Instruction.Additional(); ok {
		fulfilled = evaluateAdditional(extra, results, &messages) && fulfilled
	}
	return GroupFulfillment{Fulfilled: fulfilled, Messages: messages, Sections: results}
}

func (g *Group) evaluatePrimary(results []SectionFulfillment, messages *[]string) bool {
	pick, hasPick := g.Instruction.PickQuota()
	switch {
	case hasPick && g.Instruction.Combinator == Or:
		var have, reach float64
		for _, r := range results {
			have += r.Filled.Of(pick.Type)
			reach += r.Max.Of(pick.Type)
		}
		target := min(pick.Amount, reach)
		if have >= target {
			return true
		}
		*messages = append(*messages, fmt.Sprintf("Please select %s more %s across all sections", formatAmount(target-have), pick.Type.noun()))
		return false

	case hasPick:
		ok := true
		for _, r := range results {
			target := min(pick.Amount, r.Max.Of(pick.Type))
			have := r.Filled.Of(pick.Type)
			if have < target {
				ok = false
				*messages = append(*messages, fmt.Sprintf("Section %s requires %s more %s", r.Letter, formatAmount(target-have), pick.Type.noun()))
			}
		}
		return ok

	case g.Instruction.Combinator == Or:
		for _, r := range results {
			if r.Fulfilled {
				return true
			}
		}
		*messages = append(*messages, "Please complete at least one section")
		return false

	default:
		ok := true
		for _, r := range results {
			if !r.Fulfilled {
				ok = false
				*messages = append(*messages, fmt.Sprintf("Section %s is incomplete", r.Letter))
			}
		}
		return ok
	}
}

func evaluateArea(area AreaQuota, results []SectionFulfillment, messages *[]string) bool {
	met, reachable := 0, 0
	for _, r := range results {
		if r.Max.Of(area.Type) >= area.Amount {
			reachable++
		}
		if r.Filled.Of(area.Type) >= area.Amount {
			met++
		}
	}
	target := min(area.SectionCount, reachable)
	if met >= target {
		return true
	}
	*messages = append(*messages, fmt.Sprintf("Complete %s in %d more section(s)", area.Quota, target-met))
	return false
}

func evaluateAdditional(extra Quota, results []SectionFulfillment, messages *[]string) bool {
	var have, reach float64
	for _, r := range results {
		have += r.Filled.Of(extra.Type)
		reach += r.Max.Of(extra.Type)
	}
	target := min(extra.Amount, reach)
	if have >= target {
		return true
	}
	*messages = append(*messages, fmt.Sprintf("Please select %s more %s in total", formatAmount(target-have), extra.Type.noun()))
	return false
}

// SelectedSections are the sections the student has committed to.
func (g *Group) SelectedSections() []*Section {
	var out []*Section
	for _, s := range g.Sections {
		if s.Selected {
			out = append(out, s)
		}
	}
	return out
}

// ReadyCheck prompts for remaining selections within the sections the
// student has committed to.
func (g *Group) ReadyCheck(ctx *Context) Readiness {
	pick, hasPick := g.Instruction.PickQuota()
	if !hasPick {
		if g.Instruction.Combinator == Or && len(g.Sections) == 0 {
			return Readiness{Message: "Please select at least one section"}
		}
		return Readiness{Ready: true}
	}

	// Sections evaluate first: filling cells is what marks them selected.
	results := make(map[*Section]SectionFulfillment, len(g.Sections))
	for _, s := range g.Sections {
		results[s] = s.IsFulfilled(ctx)
	}
	selected := g.SelectedSections()

	if g.Instruction.Combinator == Or {
		var have, reach float64
		for _, s := range selected {
			have += results[s].Filled.Of(pick.Type)
			reach += s.Max.Of(pick.Type)
		}
		target := min(pick.Amount, reach)
		if len(selected) > 0 && have >= target {
			return Readiness{Ready: true}
		}
		if len(selected) == 0 {
			target = pick.Amount
		}
		return Readiness{Message: fmt.Sprintf("Please select %s more %s across all sections", formatAmount(target-have), pick.Type.noun())}
	}

	var lines []string
	for _, s := range selected {
		target := min(pick.Amount, s.Max.Of(pick.Type))
		have := results[s].Filled.Of(pick.Type)
		if have < target {
			lines = append(lines, fmt.Sprintf("Section %s requires %s more %s", s.Letter, formatAmount(target-have), pick.Type.noun()))
		}
	}
	if len(lines) > 0 {
		return Readiness{Message: strings.Join(lines, "\n")}
	}
	return Readiness{Ready: true}
}

func (g *Group) RequiredCellIDs() []string {
	var ids []string
	for _, s := range g.Sections {
		ids = append(ids, s.RequiredCellIDs()...)
	}
	return ids
}

// SmartPickCellIDs auto-selects cells with a single satisfying option. In an
// Or group it only acts when exactly one section is fully articulated; a
// group-level pick quota suppresses it otherwise.
func (g *Group) SmartPickCellIDs(agreements AgreementMap) []string {
	if g.Instruction.Combinator == Or {
		var candidates []*Section
		for _, s := range g.Sections {
			if s.fullyArticulated(agreements) {
				candidates = append(candidates, s)
			}
		}
		if len(candidates) != 1 {
			return nil
		}
		return candidates[0].SmartPickCellIDs(agreements, true)
	}
	if _, ok := g.Instruction.PickQuota(); ok {
		return nil
	}

	var ids []string
	for _, s := range g.Sections {
		ids = append(ids, s.SmartPickCellIDs(agreements, false)...)
	}
	return ids
}

// FindCell returns the cell with the given template id.
func (g *Group) FindCell(templateCellID string) (*Cell, *Section, bool) {
	for _, s := range g.Sections {
		for _, c := range s.Cells() {
			if c.TemplateCellID == templateCellID {
				return c, s, true
			}
		}
	}
	return nil, nil, false
}

// Describe renders the instruction the way an advisor would read it, e.g.
// "Pick 6 unit(s) from A or B".
func (g *Group) Describe() string {
	letters := make([]string, 0, len(g.Sections))
	for _, s := range g.Sections {
		letters = append(letters, s.Letter)
	}
	joined := strings.Join(letters, " "+strings.ToLower(string(g.Instruction.Combinator))+" ")

	var b strings.Builder
	if pick, ok := g.Instruction.PickQuota(); ok {
		fmt.Fprintf(&b, "Pick %s from %s", pick, joined)
	} else {
		b.WriteString("Complete " + joined)
	}
	if area, ok := g.Instruction.Area(); ok {
		fmt.Fprintf(&b, "\nWith %s in %d different sections", area.Quota, area.SectionCount)
	}
	if extra, ok := g.Instruction.Additional(); ok {
		fmt.Fprintf(&b, "\nWith at least %s in total", extra)
	}
	return b.String()
}
