// Package engine evaluates transfer-articulation requirements.
//
// A major's requirements form a tree of Groups, each holding lettered
// Sections, each holding rows of Cells. A Cell is satisfied by completing
// every sending course of at least one of its PickOneGroups. Evaluation is
// synchronous and never fails: missing data shows up as an unfulfilled state
// with a warning.
package engine

import (
	"strconv"
	"strings"

	"github.com/LehuyH/transfer-helper/internal/domain"
)

type RequirementStatus string

const (
	Required    RequirementStatus = "REQUIRED"
	NotRequired RequirementStatus = "NOT_REQUIRED"
	Neutral     RequirementStatus = "NEUTRAL"
)

type AmountType string

const (
	AmountClass AmountType = "CLASS"
	AmountUnit  AmountType = "UNIT"
)

// ParseAmountType maps free-text unit types ("Units", "Course", ...) to an
// AmountType. Anything mentioning "unit" counts units, the rest counts classes.
func ParseAmountType(s string) AmountType {
	if strings.Contains(strings.ToLower(s), "unit") {
		return AmountUnit
	}
	return AmountClass
}

func (t AmountType) noun() string {
	if t == AmountUnit {
		return "unit(s)"
	}
	return "class(es)"
}

// Quota is an amount of units or classes.
type Quota struct {
	Amount float64
	Type   AmountType
}

func (q Quota) String() string {
	return formatAmount(q.Amount) + " " + q.Type.noun()
}

// Tally counts units and classes together; which one matters depends on the
// quota it is compared against.
type Tally struct {
	Units   float64 `json:"units"`
	Classes int     `json:"classes"`
}

func (t Tally) Of(typ AmountType) float64 {
	if typ == AmountUnit {
		return t.Units
	}
	return float64(t.Classes)
}

func (t Tally) Add(o Tally) Tally {
	return Tally{Units: t.Units + o.Units, Classes: t.Classes + o.Classes}
}

// CourseRef identifies a sending-side course.
type CourseRef = domain.Course

// PickOneGroup is one all-or-nothing alternative for satisfying a cell.
type PickOneGroup struct {
	Courses []CourseRef
}

func (g PickOneGroup) CourseIDs() []int {
	ids := make([]int, 0, len(g.Courses))
	for _, c := range g.Courses {
		ids = append(ids, c.ID)
	}
	return ids
}

func (g PickOneGroup) Label() string {
	codes := make([]string, 0, len(g.Courses))
	for _, c := range g.Courses {
		codes = append(codes, c.Code())
	}
	return strings.Join(codes, ", ")
}

// AgreementRecord is the parsed articulation for one requirement cell.
type AgreementRecord struct {
	TemplateCellID    string
	PickOneGroups     []PickOneGroup
	GeneralAttributes []string
	CourseAttributes  []string
	SeriesAttributes  []string
	Major             string
}

// HasArticulation reports whether any sending-side substitution is known.
func (r AgreementRecord) HasArticulation() bool {
	return len(r.PickOneGroups) > 0
}

func NewAgreementRecord(a domain.Agreement, major string) AgreementRecord {
	groups := make([]PickOneGroup, 0, len(a.Articulation.SendingArticulation.PickOneGroup))
	for _, g := range a.Articulation.SendingArticulation.PickOneGroup {
		groups = append(groups, PickOneGroup{Courses: g.FromClasses})
	}
	return AgreementRecord{
		TemplateCellID:    a.TemplateCellID,
		PickOneGroups:     groups,
		GeneralAttributes: a.Articulation.GeneralAttributes,
		CourseAttributes:  a.Articulation.CourseAttributes,
		SeriesAttributes:  a.Articulation.SeriesAttributes,
		Major:             major,
	}
}

// AgreementMap indexes records by template cell id. A nil map means agreement
// data has not been loaded yet.
type AgreementMap map[string]AgreementRecord

func NewAgreementMap(agreements []domain.Agreement, major string) AgreementMap {
	m := make(AgreementMap, len(agreements))
	for _, a := range agreements {
		m[a.TemplateCellID] = NewAgreementRecord(a, major)
	}
	return m
}

func (m AgreementMap) Lookup(templateCellID string) (AgreementRecord, bool) {
	if m == nil {
		return AgreementRecord{}, false
	}
	r, ok := m[templateCellID]
	return r, ok
}

// Loaded distinguishes "no data yet" from an empty payload.
func (m AgreementMap) Loaded() bool {
	return m != nil
}

// Merge copies every record of other into m, replacing duplicates.
func (m AgreementMap) Merge(other AgreementMap) {
	for k, v := range other {
		m[k] = v
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
