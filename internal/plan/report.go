package plan

import (
	"strings"

	"github.com/LehuyH/transfer-helper/internal/engine"
)

type Report struct {
	PlanID   string        `json:"planId"`
	FromID   int           `json:"fromId"`
	FromName string        `json:"fromName"`
	Majors   []MajorReport `json:"majors"`
	Required []CourseLine  `json:"required"`
	Selected []CourseLine  `json:"selected"`
}

type MajorReport struct {
	SchoolID    int           `json:"schoolId"`
	SchoolName  string        `json:"schoolName"`
	Major       string        `json:"major"`
	Unavailable string        `json:"unavailable,omitempty"`
	Groups      []GroupReport `json:"groups"`
}

type GroupReport struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Required    bool             `json:"required"`
	Fulfilled   bool             `json:"fulfilled"`
	Messages    []string         `json:"messages,omitempty"`
	Ready       engine.Readiness `json:"ready"`
	Sections    []SectionReport  `json:"sections"`
}

type SectionReport struct {
	Letter      string           `json:"letter"`
	Description string           `json:"description"`
	Fulfilled   bool             `json:"fulfilled"`
	Filled      engine.Tally     `json:"filled"`
	Max         engine.Tally     `json:"max"`
	Target      float64          `json:"target"`
	Ready       engine.Readiness `json:"ready"`
	Cells       []CellReport     `json:"cells"`
}

type CellReport struct {
	TemplateCellID string   `json:"templateCellId"`
	Label          string   `json:"label"`
	Units          float64  `json:"units"`
	Required       string   `json:"required"`
	Selected       bool     `json:"selected"`
	Fulfilled      bool     `json:"fulfilled"`
	Missing        []int    `json:"missing,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	Options        []Option `json:"options,omitempty"`
}

// Option is one articulation alternative of a cell.
type Option struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// Complete reports whether every required group of every major is fulfilled.
// A plan without any available major is never complete.
func (r Report) Complete() bool {
	available := 0
	for _, m := range r.Majors {
		if m.Unavailable != "" {
			continue
		}
		available++
		for _, g := range m.Groups {
			if g.Required && !g.Fulfilled {
				return false
			}
		}
	}
	return available > 0
}

// Outstanding counts groups that are not fulfilled yet.
func (r Report) Outstanding() int {
	n := 0
	for _, m := range r.Majors {
		for _, g := range m.Groups {
			if !g.Fulfilled {
				n++
			}
		}
	}
	return n
}

// Evaluate runs one evaluation pass over every group of every major, in
// order, with an empty reuse ledger.
func (p *Plan) Evaluate() Report {
	taken := p.Taken()
	agreements := p.Agreements()
	ctx := engine.NewContext(taken, agreements)

	r := Report{PlanID: p.ID, FromID: p.FromID, FromName: p.FromName}
	for _, m := range p.Majors {
		mr := MajorReport{SchoolID: m.SchoolID, SchoolName: m.SchoolName, Major: m.Major, Unavailable: m.Unavailable}
		for _, g := range m.Groups {
			mr.Groups = append(mr.Groups, evaluateGroup(ctx, g))
		}
		r.Majors = append(r.Majors, mr)
	}
	r.Required = p.RequiredCourses()
	r.Selected = p.UserSelectedCourses()
	return r
}

func evaluateGroup(ctx *engine.Context, g *engine.Group) GroupReport {
	gf := g.IsFulfilled(ctx)
	gr := GroupReport{
		Name:        g.Name,
		Description: g.Describe(),
		Required:    g.Required == engine.Required,
		Fulfilled:   gf.Fulfilled,
		Messages:    gf.Messages,
		Ready:       g.ReadyCheck(ctx),
	}
	for i, s := range g.Sections {
		sf := gf.Sections[i]
		sr := SectionReport{
			Letter:      s.Letter,
			Description: s.Describe(),
			Fulfilled:   sf.Fulfilled,
			Filled:      sf.Filled,
			Max:         sf.Max,
			Target:      sf.Target,
			Ready:       s.ReadyCheck(ctx),
		}
		for _, c := range s.Cells() {
			sr.Cells = append(sr.Cells, evaluateCell(ctx, c))
		}
		gr.Sections = append(gr.Sections, sr)
	}
	return gr
}

func evaluateCell(ctx *engine.Context, c *engine.Cell) CellReport {
	cf := c.IsFulfilled(ctx)
	cr := CellReport{
		TemplateCellID: c.TemplateCellID,
		Label:          c.Label(),
		Units:          c.Units,
		Required:       string(c.Required),
		Selected:       c.Selected,
		Fulfilled:      cf.Fulfilled,
		Missing:        cf.Missing,
		Warnings:       cf.Warnings,
	}
	record, ok := ctx.Agreements.Lookup(c.TemplateCellID)
	if !ok {
		return cr
	}
	for i, g := range record.PickOneGroups {
		opt := Option{Index: i, Label: optionLabel(g), Selected: len(g.Courses) > 0}
		for _, course := range g.Courses {
			if !ctx.HasTaken(course.ID) {
				opt.Selected = false
				break
			}
		}
		cr.Options = append(cr.Options, opt)
	}
	return cr
}

func optionLabel(g engine.PickOneGroup) string {
	parts := make([]string, 0, len(g.Courses))
	for _, c := range g.Courses {
		parts = append(parts, c.Code()+" - "+c.CourseTitle)
	}
	return strings.Join(parts, " AND ")
}
