// Package plan ties the evaluation engine to a student's plan: the sending
// college, the majors being targeted and the courses picked so far.
package plan

import (
	"errors"
	"fmt"

	"github.com/LehuyH/transfer-helper/internal/domain"
	"github.com/LehuyH/transfer-helper/internal/engine"
)

var (
	ErrCellNotFound      = errors.New("requirement cell not found")
	ErrOptionOutOfRange  = errors.New("articulation option out of range")
	ErrNoArticulatedCell = errors.New("requirement cell has no articulation")
	ErrCourseNotFound    = errors.New("course not articulated by any major of the plan")
)

// MajorLabel is the required-by label of a major, e.g.
// "Computer Science, B.A. @ UC Berkeley".
func MajorLabel(schoolName, major string) string {
	return major + " @ " + schoolName
}

// BuildGroups expands every raw group of the payload, keeping payload order.
func BuildGroups(payload domain.MajorAgreement, schoolName, majorName string) []*engine.Group {
	var groups []*engine.Group
	for _, named := range payload.Groups {
		for _, raw := range named.Groups {
			groups = append(groups, engine.NewGroup(named.Name, raw, schoolName, majorName))
		}
	}
	return groups
}

// AgreementMapFor indexes the payload's agreements under the major label.
func AgreementMapFor(payload domain.MajorAgreement, label string) engine.AgreementMap {
	return engine.NewAgreementMap(payload.Agreements, label)
}

type MajorPlan struct {
	SchoolID   int
	SchoolName string
	Major      string
	// Unavailable explains why no payload could be loaded; empty when the
	// major is available.
	Unavailable string
	Groups      []*engine.Group
	Agreements  engine.AgreementMap
}

// NewMajorPlan builds a major from its payload. A nil payload leaves the
// major without groups and records fetchErr as the reason.
func NewMajorPlan(schoolID int, schoolName, major string, payload *domain.MajorAgreement, fetchErr error) *MajorPlan {
	m := &MajorPlan{SchoolID: schoolID, SchoolName: schoolName, Major: major}
	if payload == nil {
		m.Unavailable = "agreement data unavailable"
		if fetchErr != nil {
			m.Unavailable = fetchErr.Error()
		}
		return m
	}
	m.Groups = BuildGroups(*payload, schoolName, major)
	m.Agreements = AgreementMapFor(*payload, m.Label())
	return m
}

func (m *MajorPlan) Label() string {
	return MajorLabel(m.SchoolName, m.Major)
}

func (m *MajorPlan) Available() bool {
	return m.Unavailable == ""
}

type Plan struct {
	ID       string
	FromID   int
	FromName string
	Majors   []*MajorPlan
	// Selections are the sending courses the student picked, in pick order.
	Selections []engine.SelectedCourse
}

func New(id string, fromID int, fromName string) *Plan {
	return &Plan{ID: id, FromID: fromID, FromName: fromName}
}

func (p *Plan) AddMajor(m *MajorPlan) {
	p.Majors = append(p.Majors, m)
}

// Agreements merges the agreement maps of every available major.
func (p *Plan) Agreements() engine.AgreementMap {
	merged := make(engine.AgreementMap)
	for _, m := range p.Majors {
		merged.Merge(m.Agreements)
	}
	return merged
}

// ApplySmartPicks auto-selects unambiguous cells in every group and returns
// the picked template cell ids.
func (p *Plan) ApplySmartPicks() []string {
	agreements := p.Agreements()
	var picked []string
	for _, m := range p.Majors {
		for _, g := range m.Groups {
			picked = append(picked, g.SmartPickCellIDs(agreements)...)
		}
	}
	return picked
}

func (p *Plan) findCell(templateCellID string) (*engine.Cell, bool) {
	for _, m := range p.Majors {
		for _, g := range m.Groups {
			if c, _, ok := g.FindCell(templateCellID); ok {
				return c, true
			}
		}
	}
	return nil, false
}

// ToggleOption selects or deselects one articulation option of a cell. The
// option's courses replace any course from the cell's other options; if every
// course of the option was already taken, the option is cleared instead.
// It reports whether the option ended up selected.
func (p *Plan) ToggleOption(templateCellID string, option int) (bool, error) {
	cell, ok := p.findCell(templateCellID)
	if !ok {
		return false, fmt.Errorf("%s: %w", templateCellID, ErrCellNotFound)
	}
	record, ok := p.Agreements().Lookup(templateCellID)
	if !ok || !record.HasArticulation() {
		return false, fmt.Errorf("%s: %w", templateCellID, ErrNoArticulatedCell)
	}
	if option < 0 || option >= len(record.PickOneGroups) {
		return false, fmt.Errorf("%s option %d: %w", templateCellID, option, ErrOptionOutOfRange)
	}

	chosen := record.PickOneGroups[option]
	taken := p.Taken()
	remove := len(chosen.Courses) > 0
	for _, c := range chosen.Courses {
		if _, ok := taken[c.ID]; !ok {
			remove = false
			break
		}
	}

	drop := make(map[int]bool)
	for _, g := range record.PickOneGroups {
		for _, id := range g.CourseIDs() {
			drop[id] = true
		}
	}
	kept := p.Selections[:0:0]
	for _, s := range p.Selections {
		if !drop[s.Course.ID] {
			kept = append(kept, s)
		}
	}
	p.Selections = kept
	if remove {
		return false, nil
	}

	for _, c := range chosen.Courses {
		p.Selections = append(p.Selections, engine.SelectedCourse{Course: c, RequiredBy: []string{record.Major}})
	}
	cell.Selected = true
	return true, nil
}

// Select adds a sending course directly. Selecting an already selected course
// merges the required-by labels.
func (p *Plan) Select(course domain.Course, requiredBy ...string) {
	for i, s := range p.Selections {
		if s.Course.ID == course.ID {
			p.Selections[i].RequiredBy = mergeLabels(s.RequiredBy, requiredBy)
			return
		}
	}
	p.Selections = append(p.Selections, engine.SelectedCourse{Course: course, RequiredBy: mergeLabels(nil, requiredBy)})
}

// LookupCourse finds a sending course in the articulations of the plan's
// majors and returns the labels of every major that articulates it.
func (p *Plan) LookupCourse(courseID int) (domain.Course, []string, bool) {
	var found domain.Course
	var labels []string
	for _, m := range p.Majors {
		if !m.Available() {
			continue
		}
		hit := false
		for _, record := range m.Agreements {
			for _, g := range record.PickOneGroups {
				for _, c := range g.Courses {
					if c.ID == courseID {
						found, hit = c, true
					}
				}
			}
		}
		if hit {
			labels = append(labels, m.Label())
		}
	}
	return found, labels, len(labels) > 0
}

// Unselect removes a sending course and reports whether it was selected.
func (p *Plan) Unselect(courseID int) bool {
	for i, s := range p.Selections {
		if s.Course.ID == courseID {
			p.Selections = append(p.Selections[:i:i], p.Selections[i+1:]...)
			return true
		}
	}
	return false
}

// Taken is every course counted as completed: hard requirements plus the
// student's selections.
func (p *Plan) Taken() map[int]engine.SelectedCourse {
	taken := make(map[int]engine.SelectedCourse)
	add := func(c domain.Course, labels []string) {
		prev, ok := taken[c.ID]
		if !ok {
			taken[c.ID] = engine.SelectedCourse{Course: c, RequiredBy: mergeLabels(nil, labels)}
			return
		}
		prev.RequiredBy = mergeLabels(prev.RequiredBy, labels)
		taken[c.ID] = prev
	}
	for _, line := range p.RequiredCourses() {
		add(line.Course, line.RequiredBy)
	}
	for _, s := range p.Selections {
		add(s.Course, s.RequiredBy)
	}
	return taken
}

func mergeLabels(into, labels []string) []string {
	out := make([]string, 0, len(into)+len(labels))
	out = append(out, into...)
	for _, l := range labels {
		if l == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if existing == l {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, l)
		}
	}
	return out
}
