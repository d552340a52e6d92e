package engine

import (
	"fmt"
	"strings"

	"github.com/LehuyH/transfer-helper/internal/domain"
)

// Cell is one receiving-side requirement line: a single course or a linked
// series of courses.
type Cell struct {
	TemplateCellID   string
	Kind             domain.CellKind
	Courses          []CourseRef
	CourseAttributes []string
	SeriesAttributes []string
	Units            float64
	Required         RequirementStatus
	Selected         bool
}

// CellFulfillment is the outcome of evaluating a Cell. Contributing holds the
// sending course ids of the alternative that satisfied it.
type CellFulfillment struct {
	Fulfilled    bool
	Missing      []int
	Warnings     []string
	Contributing []int
}

// NewCell builds a cell. force applies when the attributes say nothing about
// requirement; pass Neutral (or "") for no forced value.
func NewCell(raw domain.RawCell, force RequirementStatus) *Cell {
	courses := raw.Courses
	if len(courses) == 0 && raw.GeneralEducationArea != nil {
		courses = []CourseRef{{
			ID:          -1,
			Prefix:      raw.GeneralEducationArea.Code,
			CourseTitle: raw.GeneralEducationArea.Name,
		}}
	}

	c := &Cell{
		TemplateCellID:   raw.TemplateCellID,
		Kind:             raw.Type,
		Courses:          courses,
		CourseAttributes: raw.CourseAttributes,
		SeriesAttributes: raw.SeriesAttributes,
	}
	for _, course := range courses {
		c.Units += course.MaxUnits
	}

	c.Required = c.classify()
	if c.Required == Neutral && force != "" {
		c.Required = force
	}
	c.Selected = c.Required == Required
	return c
}

// Classes is the number of receiving courses the cell stands for.
func (c *Cell) Classes() int {
	return len(c.Courses)
}

func (c *Cell) Tally() Tally {
	return Tally{Units: c.Units, Classes: c.Classes()}
}

// Label lists the receiving course codes, e.g. "MATH1A, MATH1B".
func (c *Cell) Label() string {
	codes := make([]string, 0, len(c.Courses))
	for _, course := range c.Courses {
		codes = append(codes, course.Code())
	}
	return strings.Join(codes, ", ")
}

func (c *Cell) titles() string {
	titles := make([]string, 0, len(c.Courses))
	for _, course := range c.Courses {
		titles = append(titles, course.CourseTitle)
	}
	return strings.Join(titles, ", ")
}

func (c *Cell) waivedWarning() string {
	return fmt.Sprintf("No articulation for %s. This requirement MAY be waived.", c.Label())
}

// IsFulfilled reports whether any alternative of the cell's articulation is
// fully completed. A cleared alternative commits its courses to the ledger;
// failed alternatives leave the ledger untouched.
func (c *Cell) IsFulfilled(ctx *Context) CellFulfillment {
	record, ok := ctx.Agreements.Lookup(c.TemplateCellID)
	if !ok {
		return CellFulfillment{Warnings: []string{c.waivedWarning()}}
	}

	ledger := ctx.ledger()
	var (
		missing      []int
		warnings     []string
		unmet        []string
		contributing []int
		satisfied    bool
		waived       bool
	)
	seenMissing := make(map[int]bool)
	addMissing := func(id int) {
		if !seenMissing[id] {
			seenMissing[id] = true
			missing = append(missing, id)
		}
	}

	if len(record.PickOneGroups) == 0 {
		waived = true
	}

	for _, group := range record.PickOneGroups {
		if len(group.Courses) == 0 {
			waived = true
			continue
		}

		draft := ledger.Draft()
		cleared := true
		for _, course := range group.Courses {
			key := LedgerKey{CourseID: course.ID, Major: record.Major}
			if !ctx.HasTaken(course.ID) {
				cleared = false
				addMissing(course.ID)
				continue
			}
			if course.ReuseLimited() {
				if owner, owned := draft.Owner(key); owned && owner != c.TemplateCellID {
					cleared = false
					addMissing(course.ID)
					warnings = append(warnings, fmt.Sprintf("%s %s cannot be reused for transfer course %s", course.Code(), course.CourseTitle, c.titles()))
					continue
				}
			}
			draft.claim(key, c.TemplateCellID)
		}

		if !cleared {
			unmet = append(unmet, group.Label())
			continue
		}
		ledger.Commit(draft)
		if !satisfied {
			contributing = group.CourseIDs()
		}
		satisfied = true
	}

	if satisfied {
		return CellFulfillment{Fulfilled: true, Contributing: contributing}
	}

	if waived {
		warnings = append(warnings, c.waivedWarning())
	}
	if len(unmet) > 0 {
		warnings = append(warnings, "Select: "+strings.Join(unmet, " OR "))
	}
	return CellFulfillment{Missing: missing, Warnings: warnings}
}

func (c *Cell) classify() RequirementStatus {
	switch c.Kind {
	case domain.CellGeneralEducation:
		return NotRequired
	case domain.CellCourse:
		return classifyAttributes(c.CourseAttributes)
	case domain.CellSeries:
		return classifyAttributes(c.SeriesAttributes)
	}
	return Neutral
}

func classifyAttributes(attrs []string) RequirementStatus {
	for _, text := range attrs {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "not required") || strings.Contains(lower, "recommended") {
			return NotRequired
		}
	}
	for _, text := range attrs {
		if strings.Contains(strings.ToLower(text), "require") {
			return Required
		}
	}
	return Neutral
}
