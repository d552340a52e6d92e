package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/LehuyH/transfer-helper/internal/domain"
)

var ErrPlanNotFound = errors.New("plan not found")

type Plan struct {
	ID        string
	FromID    int
	FromName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PlanMajor struct {
	SchoolID   int
	SchoolName string
	Major      string
	Position   int
}

// Selection is a sending course the student picked, with the labels of the
// majors that asked for it.
type Selection struct {
	Course     domain.Course
	RequiredBy []string
}

// MajorKey identifies one stored (sending, receiving, major) combination.
type MajorKey struct {
	FromID   int
	SchoolID int
	Major    string
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id         TEXT PRIMARY KEY,
		from_id    INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plan_majors (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		plan_id     TEXT NOT NULL,
		school_id   INTEGER NOT NULL,
		school_name TEXT DEFAULT '',
		major       TEXT NOT NULL,
		position    INTEGER NOT NULL DEFAULT 0,
		UNIQUE(plan_id, school_id, major)
	);
	CREATE INDEX IF NOT EXISTS idx_plan_majors_plan ON plan_majors(plan_id);

	CREATE TABLE IF NOT EXISTS selections (
		plan_id     TEXT NOT NULL,
		course_id   INTEGER NOT NULL,
		course_json TEXT NOT NULL,
		required_by TEXT DEFAULT '[]',
		position    INTEGER NOT NULL DEFAULT 0,
		selected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (plan_id, course_id)
	);

	CREATE TABLE IF NOT EXISTS agreement_cache (
		cache_key  TEXT PRIMARY KEY,
		status     INTEGER NOT NULL,
		body       BLOB,
		fetched_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	// Migration: add from_name column if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('plans') WHERE name = 'from_name'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE plans ADD COLUMN from_name TEXT DEFAULT ''`)
	}

	// Migration: add position column to selections if missing.
	colCount = 0
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('selections') WHERE name = 'position'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE selections ADD COLUMN position INTEGER NOT NULL DEFAULT 0`)
	}

	return db, nil
}

// CreatePlan stores a new plan and returns it with a fresh id.
func CreatePlan(db *sql.DB, fromID int, fromName string) (Plan, error) {
	now := time.Now().UTC().Truncate(time.Second)
	p := Plan{ID: uuid.NewString(), FromID: fromID, FromName: fromName, CreatedAt: now, UpdatedAt: now}
	_, err := db.Exec(
		`INSERT INTO plans (id, from_id, from_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.FromID, p.FromName, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return Plan{}, fmt.Errorf("insert plan: %w", err)
	}
	return p, nil
}

func GetPlan(db *sql.DB, id string) (Plan, error) {
	var p Plan
	err := db.QueryRow(
		`SELECT id, from_id, from_name, created_at, updated_at FROM plans WHERE id = ?`, id,
	).Scan(&p.ID, &p.FromID, &p.FromName, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrPlanNotFound
	}
	if err != nil {
		return Plan{}, fmt.Errorf("get plan %s: %w", id, err)
	}
	return p, nil
}

func ListPlans(db *sql.DB) ([]Plan, error) {
	rows, err := db.Query(`SELECT id, from_id, from_name, created_at, updated_at FROM plans ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.FromID, &p.FromName, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func DeletePlan(db *sql.DB, id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlanNotFound
	}
	for _, q := range []string{
		`DELETE FROM plan_majors WHERE plan_id = ?`,
		`DELETE FROM selections WHERE plan_id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func touchPlan(tx *sql.Tx, id string) error {
	res, err := tx.Exec(`UPDATE plans SET updated_at = ? WHERE id = ?`, time.Now().UTC().Truncate(time.Second), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// AddPlanMajor appends a major to the plan. Adding the same major twice is a
// no-op.
func AddPlanMajor(db *sql.DB, planID string, m PlanMajor) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := touchPlan(tx, planID); err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT OR IGNORE INTO plan_majors (plan_id, school_id, school_name, major, position)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM plan_majors WHERE plan_id = ?))`,
		planID, m.SchoolID, m.SchoolName, m.Major, planID,
	)
	if err != nil {
		return fmt.Errorf("insert plan major: %w", err)
	}
	return tx.Commit()
}

func RemovePlanMajor(db *sql.DB, planID string, schoolID int, major string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := touchPlan(tx, planID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM plan_majors WHERE plan_id = ? AND school_id = ? AND major = ?`, planID, schoolID, major); err != nil {
		return err
	}
	return tx.Commit()
}

func GetPlanMajors(db *sql.DB, planID string) ([]PlanMajor, error) {
	rows, err := db.Query(
		`SELECT school_id, school_name, major, position FROM plan_majors WHERE plan_id = ? ORDER BY position, id`,
		planID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var majors []PlanMajor
	for rows.Next() {
		var m PlanMajor
		if err := rows.Scan(&m.SchoolID, &m.SchoolName, &m.Major, &m.Position); err != nil {
			return nil, err
		}
		majors = append(majors, m)
	}
	return majors, rows.Err()
}

// DistinctMajors lists every combination referenced by any stored plan.
func DistinctMajors(db *sql.DB) ([]MajorKey, error) {
	rows, err := db.Query(
		`SELECT DISTINCT p.from_id, m.school_id, m.major
		 FROM plan_majors m JOIN plans p ON p.id = m.plan_id
		 ORDER BY p.from_id, m.school_id, m.major`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []MajorKey
	for rows.Next() {
		var k MajorKey
		if err := rows.Scan(&k.FromID, &k.SchoolID, &k.Major); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func GetSelections(db *sql.DB, planID string) ([]Selection, error) {
	rows, err := db.Query(
		`SELECT course_json, required_by FROM selections WHERE plan_id = ? ORDER BY position, course_id`,
		planID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var courseJSON, requiredBy string
		if err := rows.Scan(&courseJSON, &requiredBy); err != nil {
			return nil, err
		}
		var s Selection
		if err := json.Unmarshal([]byte(courseJSON), &s.Course); err != nil {
			return nil, fmt.Errorf("decode selection course: %w", err)
		}
		if requiredBy != "" {
			if err := json.Unmarshal([]byte(requiredBy), &s.RequiredBy); err != nil {
				return nil, fmt.Errorf("decode selection required_by: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceSelections overwrites the plan's selections with the given set,
// keeping its order.
func ReplaceSelections(db *sql.DB, planID string, selections []Selection) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := touchPlan(tx, planID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM selections WHERE plan_id = ?`, planID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO selections (plan_id, course_id, course_json, required_by, position) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range selections {
		courseJSON, err := json.Marshal(s.Course)
		if err != nil {
			return err
		}
		requiredBy := s.RequiredBy
		if requiredBy == nil {
			requiredBy = []string{}
		}
		requiredJSON, err := json.Marshal(requiredBy)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(planID, s.Course.ID, string(courseJSON), string(requiredJSON), i); err != nil {
			return fmt.Errorf("insert selection %d: %w", s.Course.ID, err)
		}
	}
	return tx.Commit()
}
