package sqlite

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/LehuyH/transfer-helper/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "transfer-helper-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitDBAddsFromNameColumn(t *testing.T) {
	db := newTestDB(t)

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('plans') WHERE name = 'from_name'`).Scan(&count); err != nil {
		t.Fatalf("query pragma_table_info failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected from_name column to exist, count=%d", count)
	}
}

func TestInitDBIsReentrant(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		db, err := InitDB(dbPath)
		if err != nil {
			t.Fatalf("InitDB #%d failed: %v", i+1, err)
		}
		_ = db.Close()
	}
}

func TestPlanLifecycle(t *testing.T) {
	db := newTestDB(t)

	p, err := CreatePlan(db, 113, "De Anza College")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected generated plan id")
	}

	got, err := GetPlan(db, p.ID)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if got.FromID != 113 || got.FromName != "De Anza College" {
		t.Fatalf("unexpected plan: %+v", got)
	}

	if err := AddPlanMajor(db, p.ID, PlanMajor{SchoolID: 79, SchoolName: "UC Berkeley", Major: "Computer Science, B.A."}); err != nil {
		t.Fatalf("AddPlanMajor failed: %v", err)
	}
	if err := AddPlanMajor(db, p.ID, PlanMajor{SchoolID: 7, SchoolName: "UC San Diego", Major: "Biology/Bioinformatics"}); err != nil {
		t.Fatalf("AddPlanMajor failed: %v", err)
	}
	if err := AddPlanMajor(db, p.ID, PlanMajor{SchoolID: 79, SchoolName: "UC Berkeley", Major: "Computer Science, B.A."}); err != nil {
		t.Fatalf("duplicate AddPlanMajor failed: %v", err)
	}

	majors, err := GetPlanMajors(db, p.ID)
	if err != nil {
		t.Fatalf("GetPlanMajors failed: %v", err)
	}
	want := []PlanMajor{
		{SchoolID: 79, SchoolName: "UC Berkeley", Major: "Computer Science, B.A.", Position: 0},
		{SchoolID: 7, SchoolName: "UC San Diego", Major: "Biology/Bioinformatics", Position: 1},
	}
	if diff := cmp.Diff(want, majors); diff != "" {
		t.Fatalf("majors mismatch (-want +got):\n%s", diff)
	}

	if err := RemovePlanMajor(db, p.ID, 79, "Computer Science, B.A."); err != nil {
		t.Fatalf("RemovePlanMajor failed: %v", err)
	}
	majors, _ = GetPlanMajors(db, p.ID)
	if len(majors) != 1 || majors[0].SchoolID != 7 {
		t.Fatalf("unexpected majors after removal: %+v", majors)
	}

	if err := DeletePlan(db, p.ID); err != nil {
		t.Fatalf("DeletePlan failed: %v", err)
	}
	if _, err := GetPlan(db, p.ID); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
	if majors, _ := GetPlanMajors(db, p.ID); len(majors) != 0 {
		t.Fatalf("expected majors removed with plan, got %+v", majors)
	}
}

func TestMissingPlanErrors(t *testing.T) {
	db := newTestDB(t)

	if err := AddPlanMajor(db, "nope", PlanMajor{SchoolID: 1, Major: "X"}); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("AddPlanMajor: expected ErrPlanNotFound, got %v", err)
	}
	if err := ReplaceSelections(db, "nope", nil); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("ReplaceSelections: expected ErrPlanNotFound, got %v", err)
	}
	if err := DeletePlan(db, "nope"); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("DeletePlan: expected ErrPlanNotFound, got %v", err)
	}
}

func TestReplaceSelections(t *testing.T) {
	db := newTestDB(t)
	p, err := CreatePlan(db, 113, "De Anza College")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	first := []Selection{
		{Course: domain.Course{ID: 11, Prefix: "MATH", CourseNumber: "1A", MaxUnits: 5}, RequiredBy: []string{"CS @ UCB"}},
		{Course: domain.Course{ID: 12, Prefix: "MATH", CourseNumber: "1B", MaxUnits: 5}},
	}
	if err := ReplaceSelections(db, p.ID, first); err != nil {
		t.Fatalf("ReplaceSelections failed: %v", err)
	}
	got, err := GetSelections(db, p.ID)
	if err != nil {
		t.Fatalf("GetSelections failed: %v", err)
	}
	want := []Selection{
		first[0],
		{Course: first[1].Course, RequiredBy: []string{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("selections mismatch (-want +got):\n%s", diff)
	}

	if err := ReplaceSelections(db, p.ID, first[1:]); err != nil {
		t.Fatalf("ReplaceSelections failed: %v", err)
	}
	got, _ = GetSelections(db, p.ID)
	if len(got) != 1 || got[0].Course.ID != 12 {
		t.Fatalf("expected only MATH1B to remain, got %+v", got)
	}
}

func TestSelectionsKeepPickOrder(t *testing.T) {
	db := newTestDB(t)
	p, err := CreatePlan(db, 113, "De Anza College")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	var picks []Selection
	for _, id := range []int{30, 10, 20} {
		picks = append(picks, Selection{Course: domain.Course{ID: id, Prefix: "BIO", CourseNumber: "X"}, RequiredBy: []string{}})
	}
	if err := ReplaceSelections(db, p.ID, picks); err != nil {
		t.Fatalf("ReplaceSelections failed: %v", err)
	}
	got, err := GetSelections(db, p.ID)
	if err != nil {
		t.Fatalf("GetSelections failed: %v", err)
	}
	var ids []int
	for _, s := range got {
		ids = append(ids, s.Course.ID)
	}
	if diff := cmp.Diff([]int{30, 10, 20}, ids); diff != "" {
		t.Fatalf("selection order mismatch (-want +got):\n%s", diff)
	}
}

func TestInitDBAddsSelectionPosition(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	legacy, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	if _, err := legacy.Exec(`CREATE TABLE selections (
		plan_id TEXT NOT NULL,
		course_id INTEGER NOT NULL,
		course_json TEXT NOT NULL,
		required_by TEXT DEFAULT '[]',
		selected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (plan_id, course_id)
	)`); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	_ = legacy.Close()

	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('selections') WHERE name = 'position'`).Scan(&count); err != nil {
		t.Fatalf("query pragma_table_info failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected position column to exist, count=%d", count)
	}
}

func TestDistinctMajors(t *testing.T) {
	db := newTestDB(t)
	a, _ := CreatePlan(db, 113, "De Anza College")
	b, _ := CreatePlan(db, 113, "De Anza College")
	c, _ := CreatePlan(db, 50, "Foothill College")
	for _, pm := range []struct {
		plan string
		m    PlanMajor
	}{
		{a.ID, PlanMajor{SchoolID: 79, Major: "Computer Science, B.A."}},
		{b.ID, PlanMajor{SchoolID: 79, Major: "Computer Science, B.A."}},
		{c.ID, PlanMajor{SchoolID: 79, Major: "Computer Science, B.A."}},
	} {
		if err := AddPlanMajor(db, pm.plan, pm.m); err != nil {
			t.Fatalf("AddPlanMajor failed: %v", err)
		}
	}

	keys, err := DistinctMajors(db)
	if err != nil {
		t.Fatalf("DistinctMajors failed: %v", err)
	}
	want := []MajorKey{
		{FromID: 50, SchoolID: 79, Major: "Computer Science, B.A."},
		{FromID: 113, SchoolID: 79, Major: "Computer Science, B.A."},
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestAgreementCacheRoundTrip(t *testing.T) {
	cache := NewAgreementCache(newTestDB(t))

	if _, ok, err := cache.Get("113/79/CS.json"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	fetched := time.Date(2024, 8, 25, 12, 0, 0, 0, time.UTC)
	if err := cache.Put(CacheEntry{Key: "113/79/CS.json", Status: 200, Body: []byte(`{"agreements":[]}`), FetchedAt: fetched}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Put(CacheEntry{Key: "113/79/CS.json", Status: 403, FetchedAt: fetched.Add(time.Hour)}); err != nil {
		t.Fatalf("Put overwrite failed: %v", err)
	}

	got, ok, err := cache.Get("113/79/CS.json")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Status != 403 || len(got.Body) != 0 || !got.FetchedAt.Equal(fetched.Add(time.Hour)) {
		t.Fatalf("unexpected entry: %+v", got)
	}

	counts, err := cache.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[403] != 1 || len(counts) != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
