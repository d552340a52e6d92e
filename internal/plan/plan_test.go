package plan

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/LehuyH/transfer-helper/internal/domain"
	"github.com/LehuyH/transfer-helper/internal/engine"
)

const biologyPayload = `{
	"agreements": [
		{"templateCellId": "a1", "articulation": {"sendingArticulation": {"pickOneGroup": [
			{"fromClasses": [{"courseIdentifierParentId": 11, "prefix": "MATH", "courseNumber": "1A", "courseTitle": "Calculus I", "minUnits": 5, "maxUnits": 5}]}
		]}}},
		{"templateCellId": "b1", "articulation": {"sendingArticulation": {"pickOneGroup": [
			{"fromClasses": [{"courseIdentifierParentId": 21, "prefix": "BIO", "courseNumber": "6A", "courseTitle": "Cell Biology", "maxUnits": 5}]},
			{"fromClasses": [
				{"courseIdentifierParentId": 22, "prefix": "BIO", "courseNumber": "10", "courseTitle": "Biology I", "maxUnits": 4},
				{"courseIdentifierParentId": 23, "prefix": "BIO", "courseNumber": "11", "courseTitle": "Biology II", "maxUnits": 4}
			]}
		]}}},
		{"templateCellId": "b2", "articulation": {"sendingArticulation": {"pickOneGroup": [
			{"fromClasses": [{"courseIdentifierParentId": 31, "prefix": "CHEM", "courseNumber": "1A", "courseTitle": "General Chemistry", "maxUnits": 5}]}
		]}}}
	],
	"groups": {
		"Major Preparation": [{"sections": [
			{"agreements": [{"courses": [
				{"templateCellId": "a1", "type": "Course", "courses": [{"courseIdentifierParentId": 901, "prefix": "MATH", "courseNumber": "31", "courseTitle": "Calculus", "maxUnits": 4}]}
			]}]},
			{"sectionAdvisements": [{"type": "NFollowing", "amount": 1, "amountUnitType": "Course"}], "agreements": [
				{"courses": [{"templateCellId": "b1", "type": "Course", "courses": [{"courseIdentifierParentId": 902, "prefix": "BIO", "courseNumber": "93", "courseTitle": "Biology", "maxUnits": 4}]}]},
				{"courses": [{"templateCellId": "b2", "type": "Course", "courses": [{"courseIdentifierParentId": 903, "prefix": "CHEM", "courseNumber": "10", "courseTitle": "Chemistry", "maxUnits": 4}]}]}
			]}
		]}],
		"Recommended Courses": [{"sections": []}]
	}
}`

const chemistryPayload = `{
	"agreements": [
		{"templateCellId": "x1", "articulation": {"sendingArticulation": {"pickOneGroup": [
			{"fromClasses": [{"courseIdentifierParentId": 11, "prefix": "MATH", "courseNumber": "1A", "courseTitle": "Calculus I", "minUnits": 5, "maxUnits": 5}]}
		]}}}
	],
	"groups": {
		"Lower Division Requirements": [{"sections": [
			{"agreements": [{"courses": [
				{"templateCellId": "x1", "type": "Course", "courses": [{"courseIdentifierParentId": 911, "prefix": "MATH", "courseNumber": "20A", "courseTitle": "Calculus", "maxUnits": 4}]}
			]}]}
		]}]
	}
}`

const (
	biologyLabel   = "Biology, B.S. @ UC Example"
	chemistryLabel = "Chemistry, B.S. @ UC Other"
)

func decodePayload(t *testing.T, raw string) *domain.MajorAgreement {
	t.Helper()
	var m domain.MajorAgreement
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return &m
}

func biologyPlan(t *testing.T) *Plan {
	t.Helper()
	p := New("plan-1", 113, "De Anza College")
	p.AddMajor(NewMajorPlan(7, "UC Example", "Biology, B.S.", decodePayload(t, biologyPayload), nil))
	return p
}

func codes(lines []CourseLine) []string {
	var out []string
	for _, l := range lines {
		out = append(out, l.Code())
	}
	return out
}

func TestBuildGroupsKeepsPayloadOrder(t *testing.T) {
	groups := BuildGroups(*decodePayload(t, biologyPayload), "UC Example", "Biology, B.S.")
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Name != "Major Preparation" || groups[1].Name != "Recommended Courses" {
		t.Fatalf("unexpected group order: %q, %q", groups[0].Name, groups[1].Name)
	}
	if groups[0].Required != engine.Required || groups[1].Required != engine.NotRequired {
		t.Fatalf("unexpected requirement inference: %s, %s", groups[0].Required, groups[1].Required)
	}
}

func TestAgreementMapForStampsMajor(t *testing.T) {
	am := AgreementMapFor(*decodePayload(t, biologyPayload), biologyLabel)
	record, ok := am.Lookup("b1")
	if !ok {
		t.Fatal("expected b1 record")
	}
	if record.Major != biologyLabel || len(record.PickOneGroups) != 2 {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestRequiredCoursesFromForcedCells(t *testing.T) {
	p := biologyPlan(t)

	got := p.RequiredCourses()
	want := []CourseLine{{
		Course:     domain.Course{ID: 11, Prefix: "MATH", CourseNumber: "1A", CourseTitle: "Calculus I", MinUnits: 5, MaxUnits: 5},
		RequiredBy: []string{biologyLabel},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("required courses mismatch (-want +got):\n%s", diff)
	}

	r := p.Evaluate()
	if r.Complete() {
		t.Fatal("plan must not be complete before section B has a pick")
	}
	prep := r.Majors[0].Groups[0]
	if prep.Fulfilled || len(prep.Sections) != 2 || !prep.Sections[0].Fulfilled || prep.Sections[1].Fulfilled {
		t.Fatalf("unexpected preparation report: %+v", prep)
	}
	if diff := cmp.Diff([]string{"Section B is incomplete"}, prep.Messages); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestSmartPickCompletesPlan(t *testing.T) {
	p := biologyPlan(t)

	if diff := cmp.Diff([]string{"b2"}, p.ApplySmartPicks()); diff != "" {
		t.Fatalf("smart pick mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"CHEM1A", "MATH1A"}, codes(p.RequiredCourses())); diff != "" {
		t.Fatalf("required courses mismatch (-want +got):\n%s", diff)
	}
	r := p.Evaluate()
	if !r.Complete() {
		t.Fatalf("expected complete plan, got %+v", r.Majors[0].Groups[0])
	}
	if len(r.Selected) != 0 {
		t.Fatalf("expected no user selections, got %+v", r.Selected)
	}
}

func TestToggleOption(t *testing.T) {
	p := biologyPlan(t)

	selected, err := p.ToggleOption("b1", 1)
	if err != nil || !selected {
		t.Fatalf("ToggleOption(b1, 1) = %v, %v", selected, err)
	}
	if diff := cmp.Diff([]string{"BIO10", "BIO11"}, codes(p.UserSelectedCourses())); diff != "" {
		t.Fatalf("selected mismatch (-want +got):\n%s", diff)
	}
	if r := p.Evaluate(); !r.Complete() {
		t.Fatalf("expected complete plan after picking b1, got %+v", r.Majors[0].Groups[0])
	}

	selected, err = p.ToggleOption("b1", 0)
	if err != nil || !selected {
		t.Fatalf("ToggleOption(b1, 0) = %v, %v", selected, err)
	}
	if diff := cmp.Diff([]string{"BIO6A"}, codes(p.UserSelectedCourses())); diff != "" {
		t.Fatalf("switching options must replace courses (-want +got):\n%s", diff)
	}
	if got := p.UserSelectedCourses()[0].RequiredBy; !cmp.Equal(got, []string{biologyLabel}) {
		t.Fatalf("unexpected required-by: %v", got)
	}

	selected, err = p.ToggleOption("b1", 0)
	if err != nil || selected {
		t.Fatalf("second ToggleOption(b1, 0) = %v, %v", selected, err)
	}
	if len(p.Selections) != 0 {
		t.Fatalf("expected selections cleared, got %+v", p.Selections)
	}
}

func TestToggleOptionErrors(t *testing.T) {
	p := biologyPlan(t)

	if _, err := p.ToggleOption("zz", 0); !errors.Is(err, ErrCellNotFound) {
		t.Fatalf("expected ErrCellNotFound, got %v", err)
	}
	if _, err := p.ToggleOption("b1", 2); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("expected ErrOptionOutOfRange, got %v", err)
	}
}

func TestRequiredByMergesAcrossMajors(t *testing.T) {
	p := biologyPlan(t)
	p.AddMajor(NewMajorPlan(9, "UC Other", "Chemistry, B.S.", decodePayload(t, chemistryPayload), nil))

	got := p.RequiredCourses()
	if len(got) != 1 {
		t.Fatalf("expected MATH1A once, got %+v", got)
	}
	if diff := cmp.Diff([]string{biologyLabel, chemistryLabel}, got[0].RequiredBy); diff != "" {
		t.Fatalf("required-by mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectAndUnselect(t *testing.T) {
	p := biologyPlan(t)
	bio := domain.Course{ID: 21, Prefix: "BIO", CourseNumber: "6A"}

	p.Select(bio)
	p.Select(bio, biologyLabel)
	if len(p.Selections) != 1 || !cmp.Equal(p.Selections[0].RequiredBy, []string{biologyLabel}) {
		t.Fatalf("unexpected selections: %+v", p.Selections)
	}
	if !p.Unselect(21) || p.Unselect(21) {
		t.Fatal("Unselect should remove the course exactly once")
	}
}

func TestUnavailableMajor(t *testing.T) {
	p := New("plan-2", 113, "De Anza College")
	p.AddMajor(NewMajorPlan(7, "UC Example", "Physics, B.S.", nil, errors.New("agreement data: permission denied")))

	r := p.Evaluate()
	if r.Complete() {
		t.Fatal("a plan without available majors is never complete")
	}
	if r.Majors[0].Unavailable != "agreement data: permission denied" {
		t.Fatalf("unexpected unavailable reason: %q", r.Majors[0].Unavailable)
	}
}

func TestCellReportOptions(t *testing.T) {
	p := biologyPlan(t)
	if _, err := p.ToggleOption("b1", 1); err != nil {
		t.Fatalf("ToggleOption failed: %v", err)
	}
	r := p.Evaluate()
	cell := r.Majors[0].Groups[0].Sections[1].Cells[0]
	want := []Option{
		{Index: 0, Label: "BIO6A - Cell Biology"},
		{Index: 1, Label: "BIO10 - Biology I AND BIO11 - Biology II", Selected: true},
	}
	if diff := cmp.Diff(want, cell.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if !cell.Fulfilled || !cell.Selected {
		t.Fatalf("expected fulfilled selected cell, got %+v", cell)
	}
}

func TestLookupCourse(t *testing.T) {
	p := biologyPlan(t)
	p.AddMajor(NewMajorPlan(9, "UC Other", "Chemistry, B.S.", decodePayload(t, chemistryPayload), nil))

	course, labels, ok := p.LookupCourse(11)
	if !ok || course.Code() != "MATH1A" {
		t.Fatalf("LookupCourse(11) = %+v, %v", course, ok)
	}
	if diff := cmp.Diff([]string{biologyLabel, chemistryLabel}, labels); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
	if _, _, ok := p.LookupCourse(999); ok {
		t.Fatal("unknown course must not be found")
	}
}
