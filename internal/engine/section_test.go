package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/LehuyH/transfer-helper/internal/domain"
)

var (
	bio1  = course(301, "BIO", "1", 3)
	bio2  = course(302, "BIO", "2", 4)
	bio3  = course(303, "BIO", "3", 4)
	rBio3 = course(9301, "BIO", "93", 3)
	rBio4 = course(9302, "BIO", "94", 4)
	rBio5 = course(9303, "BIO", "95", 4)
)

func TestSectionMaxCountsKnownArticulations(t *testing.T) {
	s := NewSection(rawSection(nil,
		courseCell("b1", rBio3),
		courseCell("b2", rBio4),
		courseCell("b3", rBio5),
	), Neutral)

	if want := (Tally{Units: 11, Classes: 3}); s.Max != want {
		t.Fatalf("before load: want %+v, got %+v", want, s.Max)
	}

	s.UpdateRequiredCells(agreements(
		agreement("b1", []CourseRef{bio1}),
		agreement("b2"),
	))
	if want := (Tally{Units: 3, Classes: 1}); s.Max != want {
		t.Fatalf("after load: want %+v, got %+v", want, s.Max)
	}
}

func TestSectionPickCappedByMax(t *testing.T) {
	s := NewSection(rawSection(pickUnits(5),
		courseCell("b1", rBio3),
		courseCell("b2", rBio4),
	), Neutral)
	ctx := NewContext(taken(bio1), agreements(agreement("b1", []CourseRef{bio1})))

	got := s.IsFulfilled(ctx)
	want := SectionFulfillment{
		Fulfilled: true,
		Filled:    Tally{Units: 3, Classes: 1},
		Max:       Tally{Units: 3, Classes: 1},
		Target:    3,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fulfillment mismatch (-want +got):\n%s", diff)
	}
}

func TestSectionPickShortfall(t *testing.T) {
	s := NewSection(rawSection(pickUnits(6),
		courseCell("b1", rBio3),
		courseCell("b2", rBio4),
	), Neutral)
	s.Letter = "B"
	ctx := NewContext(taken(bio1), agreements(
		agreement("b1", []CourseRef{bio1}),
		agreement("b2", []CourseRef{bio2}),
	))

	if got := s.IsFulfilled(ctx); got.Fulfilled {
		t.Fatalf("expected unfulfilled, got %+v", got)
	}
	ready := s.ReadyCheck(ctx.NewPass())
	if ready.Ready || ready.Message != "Please select 3 more unit(s) in section B" {
		t.Fatalf("unexpected readiness: %+v", ready)
	}
}

func TestSectionAllNeedsEveryArticulatedCell(t *testing.T) {
	s := NewSection(rawSection(nil,
		courseCell("b1", rBio3),
		courseCell("b2", rBio4),
		courseCell("b3", rBio5),
	), Required)
	am := agreements(
		agreement("b1", []CourseRef{bio1}),
		agreement("b2", []CourseRef{bio2}),
	)

	if got := s.IsFulfilled(NewContext(taken(bio1), am)); got.Fulfilled {
		t.Fatalf("expected unfulfilled with one of two, got %+v", got)
	}
	got := s.IsFulfilled(NewContext(taken(bio1, bio2), am))
	if !got.Fulfilled || got.Target != 2 {
		t.Fatalf("expected fulfilled against capped target 2, got %+v", got)
	}
	if !s.Required || !s.Selected {
		t.Fatalf("forced section must be required and selected")
	}
}

func TestSectionFillingMarksSelected(t *testing.T) {
	s := NewSection(rawSection(pickUnits(3),
		courseCell("b1", rBio3),
		courseCell("b2", rBio4),
	), Neutral)
	if s.Selected {
		t.Fatalf("fresh optional section must not be selected")
	}
	s.IsFulfilled(NewContext(taken(bio1), agreements(agreement("b1", []CourseRef{bio1}))))
	if !s.Selected {
		t.Fatalf("section with a fulfilled cell must be selected")
	}
	if diff := cmp.Diff([]string{"b1"}, s.RequiredCellIDs()); diff != "" {
		t.Fatalf("required cells mismatch (-want +got):\n%s", diff)
	}
}

func smartPickSection(amount float64) *Section {
	required := domain.RawCell{
		TemplateCellID:   "b1",
		Type:             domain.CellCourse,
		Courses:          []CourseRef{rBio4},
		CourseAttributes: []string{"Required"},
	}
	return NewSection(rawSection(pickUnits(amount),
		required,
		courseCell("b2", rBio5),
		courseCell("b3", rBio3),
	), Neutral)
}

func smartPickAgreements() AgreementMap {
	return agreements(
		agreement("b1", []CourseRef{bio1}),
		agreement("b2", []CourseRef{bio2}),
		agreement("b3", []CourseRef{bio1}, []CourseRef{bio3}),
	)
}

func TestSectionSmartPickSelectsSingleOptionCells(t *testing.T) {
	s := smartPickSection(8)

	got := s.SmartPickCellIDs(smartPickAgreements(), false)
	if diff := cmp.Diff([]string{"b2"}, got); diff != "" {
		t.Fatalf("smart pick mismatch (-want +got):\n%s", diff)
	}
	cell := s.Cells()[1]
	if !cell.Selected || cell.Required != Required {
		t.Fatalf("picked cell must be selected and required: %+v", cell)
	}
}

func TestSectionSmartPickRejectsOverQuota(t *testing.T) {
	s := smartPickSection(3)

	if got := s.SmartPickCellIDs(smartPickAgreements(), false); got != nil {
		t.Fatalf("expected no picks over quota, got %v", got)
	}
	if cell := s.Cells()[1]; cell.Selected || cell.Required != Neutral {
		t.Fatalf("rejected pick must leave cells untouched: %+v", cell)
	}
}

func TestSectionSmartPickSkipsOptionalSections(t *testing.T) {
	s := NewSection(rawSection(pickUnits(8), courseCell("b2", rBio5)), Neutral)
	if got := s.SmartPickCellIDs(smartPickAgreements(), false); got != nil {
		t.Fatalf("optional section picked %v", got)
	}
	if got := s.SmartPickCellIDs(smartPickAgreements(), true); len(got) != 1 {
		t.Fatalf("forced pick expected one cell, got %v", got)
	}
}

func TestSectionDescribe(t *testing.T) {
	s := NewSection(rawSection(pickUnits(3)), Neutral)
	s.Letter = "A"
	if got := s.Describe(); got != "Pick a total of 3 unit(s) from A" {
		t.Fatalf("unexpected description: %q", got)
	}
	s.Instruction = AllInstruction()
	if got := s.Describe(); got != "Complete A" {
		t.Fatalf("unexpected description: %q", got)
	}
}
