package engine

import "github.com/LehuyH/transfer-helper/internal/domain"

const reuseOnce = "This course can only apply to one requirement"

func course(id int, prefix, number string, units float64, attrs ...string) CourseRef {
	c := CourseRef{
		ID:           id,
		Prefix:       prefix,
		CourseNumber: number,
		CourseTitle:  prefix + " " + number,
		MinUnits:     units,
		MaxUnits:     units,
	}
	for _, a := range attrs {
		c.Attributes = append(c.Attributes, domain.Attribute{Content: a})
	}
	return c
}

func courseCell(id string, receiving ...CourseRef) domain.RawCell {
	return domain.RawCell{TemplateCellID: id, Type: domain.CellCourse, Courses: receiving}
}

func agreement(cellID string, groups ...[]CourseRef) domain.Agreement {
	a := domain.Agreement{TemplateCellID: cellID}
	for _, g := range groups {
		a.Articulation.SendingArticulation.PickOneGroup = append(a.Articulation.SendingArticulation.PickOneGroup, domain.PickOneGroup{FromClasses: g})
	}
	return a
}

func agreements(list ...domain.Agreement) AgreementMap {
	return NewAgreementMap(list, "Computer Science, B.S.")
}

func taken(courses ...CourseRef) map[int]SelectedCourse {
	out := make(map[int]SelectedCourse, len(courses))
	for _, c := range courses {
		out[c.ID] = SelectedCourse{Course: c}
	}
	return out
}

func rawSection(advisements []domain.Advisement, cells ...domain.RawCell) domain.RawSection {
	s := domain.RawSection{SectionAdvisements: advisements}
	for _, c := range cells {
		s.Agreements = append(s.Agreements, domain.RawRow{Courses: []domain.RawCell{c}})
	}
	return s
}

func pickUnits(amount float64) []domain.Advisement {
	return []domain.Advisement{{Type: "NFollowing", Amount: amount, AmountUnitType: "Units"}}
}
