package plan

import (
	"sort"

	"github.com/LehuyH/transfer-helper/internal/domain"
	"github.com/LehuyH/transfer-helper/internal/engine"
)

// CourseLine is a sending course with every major that asks for it.
type CourseLine struct {
	Course     domain.Course `json:"course"`
	RequiredBy []string      `json:"requiredBy"`
}

func (l CourseLine) Code() string {
	return l.Course.Code()
}

// RequiredCourses lists the courses of required cells that have exactly one
// articulation option, merged across majors and ordered by course code.
func (p *Plan) RequiredCourses() []CourseLine {
	agreements := p.Agreements()
	lines := newLineSet()
	for _, m := range p.Majors {
		for _, g := range m.Groups {
			for _, s := range g.Sections {
				for _, c := range s.Cells() {
					if c.Required != engine.Required {
						continue
					}
					record, ok := agreements.Lookup(c.TemplateCellID)
					if !ok || len(record.PickOneGroups) != 1 {
						continue
					}
					for _, course := range record.PickOneGroups[0].Courses {
						lines.add(course, record.Major)
					}
				}
			}
		}
	}
	return lines.sorted()
}

// UserSelectedCourses lists the student's own picks that are not already hard
// requirements.
func (p *Plan) UserSelectedCourses() []CourseLine {
	required := make(map[int]bool)
	for _, l := range p.RequiredCourses() {
		required[l.Course.ID] = true
	}
	lines := newLineSet()
	for _, s := range p.Selections {
		if required[s.Course.ID] {
			continue
		}
		lines.add(s.Course, s.RequiredBy...)
	}
	return lines.sorted()
}

type lineSet struct {
	byID  map[int]*CourseLine
	order []int
}

func newLineSet() *lineSet {
	return &lineSet{byID: make(map[int]*CourseLine)}
}

func (s *lineSet) add(c domain.Course, labels ...string) {
	line, ok := s.byID[c.ID]
	if !ok {
		line = &CourseLine{Course: c, RequiredBy: []string{}}
		s.byID[c.ID] = line
		s.order = append(s.order, c.ID)
	}
	line.RequiredBy = mergeLabels(line.RequiredBy, labels)
}

func (s *lineSet) sorted() []CourseLine {
	out := make([]CourseLine, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Code() != out[j].Code() {
			return out[i].Code() < out[j].Code()
		}
		return out[i].Course.ID < out[j].Course.ID
	})
	return out
}
