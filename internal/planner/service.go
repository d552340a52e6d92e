// Package planner persists plans and rebuilds them from stored majors and
// selections plus freshly loaded agreement data.
package planner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/LehuyH/transfer-helper/internal/assist"
	"github.com/LehuyH/transfer-helper/internal/domain"
	"github.com/LehuyH/transfer-helper/internal/plan"
	"github.com/LehuyH/transfer-helper/internal/storage/sqlite"
)

var (
	ErrUnknownCollege = errors.New("unknown community college")
	ErrUnknownSchool  = errors.New("unknown transfer school")
	ErrUnknownMajor   = errors.New("major not offered by transfer school")
)

// Source loads agreement data. *assist.Client satisfies it.
type Source interface {
	Directory(ctx context.Context) (domain.Directory, error)
	FetchMajors(ctx context.Context, reqs []assist.MajorRequest) []assist.MajorResult
}

type Service struct {
	db     *sql.DB
	src    Source
	logger *zap.Logger
}

func New(db *sql.DB, src Source, logger *zap.Logger) *Service {
	return &Service{db: db, src: src, logger: logger}
}

func (s *Service) Colleges(ctx context.Context) (domain.Directory, error) {
	return s.src.Directory(ctx)
}

func (s *Service) ListPlans() ([]sqlite.Plan, error) {
	return sqlite.ListPlans(s.db)
}

// CreatePlan starts an empty plan for a community college.
func (s *Service) CreatePlan(ctx context.Context, fromID int) (sqlite.Plan, error) {
	dir, err := s.src.Directory(ctx)
	if err != nil {
		return sqlite.Plan{}, fmt.Errorf("load directory: %w", err)
	}
	college, ok := dir.CommunityCollege(fromID)
	if !ok {
		return sqlite.Plan{}, fmt.Errorf("%d: %w", fromID, ErrUnknownCollege)
	}
	p, err := sqlite.CreatePlan(s.db, fromID, college.Name)
	if err != nil {
		return sqlite.Plan{}, err
	}
	s.logger.Info("plan created", zap.String("plan_id", p.ID), zap.Int("from_id", fromID))
	return p, nil
}

func (s *Service) DeletePlan(id string) error {
	return sqlite.DeletePlan(s.db, id)
}

// AddMajor targets a major of a transfer school. The school must publish the
// major in the directory.
func (s *Service) AddMajor(ctx context.Context, planID string, schoolID int, major string) error {
	if _, err := sqlite.GetPlan(s.db, planID); err != nil {
		return err
	}
	dir, err := s.src.Directory(ctx)
	if err != nil {
		return fmt.Errorf("load directory: %w", err)
	}
	school, ok := dir.TransferCollege(schoolID)
	if !ok {
		return fmt.Errorf("%d: %w", schoolID, ErrUnknownSchool)
	}
	if !school.HasMajor(major) {
		return fmt.Errorf("%s at %s: %w", major, school.Name, ErrUnknownMajor)
	}
	if err := sqlite.AddPlanMajor(s.db, planID, sqlite.PlanMajor{SchoolID: schoolID, SchoolName: school.Name, Major: major}); err != nil {
		return err
	}
	s.logger.Info("major added", zap.String("plan_id", planID), zap.Int("school_id", schoolID), zap.String("major", major))
	return nil
}

func (s *Service) RemoveMajor(planID string, schoolID int, major string) error {
	return sqlite.RemovePlanMajor(s.db, planID, schoolID, major)
}

// Load rebuilds a plan: stored majors are fetched concurrently, smart picks
// are applied, then stored selections are restored. A major whose payload
// cannot be loaded stays in the plan as unavailable.
func (s *Service) Load(ctx context.Context, planID string) (*plan.Plan, error) {
	p, _, err := s.load(ctx, planID)
	return p, err
}

func (s *Service) load(ctx context.Context, planID string) (*plan.Plan, []string, error) {
	stored, err := sqlite.GetPlan(s.db, planID)
	if err != nil {
		return nil, nil, err
	}
	majors, err := sqlite.GetPlanMajors(s.db, planID)
	if err != nil {
		return nil, nil, fmt.Errorf("load plan majors: %w", err)
	}
	selections, err := sqlite.GetSelections(s.db, planID)
	if err != nil {
		return nil, nil, fmt.Errorf("load selections: %w", err)
	}

	reqs := make([]assist.MajorRequest, len(majors))
	for i, m := range majors {
		reqs[i] = assist.MajorRequest{FromID: stored.FromID, ToID: m.SchoolID, Major: m.Major}
	}
	results := s.src.FetchMajors(ctx, reqs)

	p := plan.New(stored.ID, stored.FromID, stored.FromName)
	for i, m := range majors {
		res := results[i]
		if res.Err != nil {
			s.logger.Warn("major unavailable",
				zap.String("plan_id", planID),
				zap.Int("school_id", m.SchoolID),
				zap.String("major", m.Major),
				zap.Error(res.Err))
		}
		p.AddMajor(plan.NewMajorPlan(m.SchoolID, m.SchoolName, m.Major, res.Agreement, res.Err))
	}
	picked := p.ApplySmartPicks()
	s.logger.Debug("smart picks applied", zap.String("plan_id", planID), zap.Strings("cells", picked))

	for _, sel := range selections {
		p.Select(sel.Course, sel.RequiredBy...)
	}
	return p, picked, nil
}

func (s *Service) Report(ctx context.Context, planID string) (plan.Report, error) {
	p, err := s.Load(ctx, planID)
	if err != nil {
		return plan.Report{}, err
	}
	return p.Evaluate(), nil
}

// SmartPick reports which cells were picked automatically on load.
func (s *Service) SmartPick(ctx context.Context, planID string) ([]string, error) {
	_, picked, err := s.load(ctx, planID)
	if err != nil {
		return nil, err
	}
	if picked == nil {
		picked = []string{}
	}
	return picked, nil
}

func (s *Service) Select(ctx context.Context, planID string, course domain.Course, requiredBy ...string) (plan.Report, error) {
	return s.mutate(ctx, planID, func(p *plan.Plan) error {
		p.Select(course, requiredBy...)
		return nil
	})
}

// SelectByID selects a course the plan's majors articulate, labelled with
// every major that asks for it.
func (s *Service) SelectByID(ctx context.Context, planID string, courseID int) (plan.Report, error) {
	return s.mutate(ctx, planID, func(p *plan.Plan) error {
		course, labels, ok := p.LookupCourse(courseID)
		if !ok {
			return fmt.Errorf("%d: %w", courseID, plan.ErrCourseNotFound)
		}
		p.Select(course, labels...)
		return nil
	})
}

func (s *Service) Unselect(ctx context.Context, planID string, courseID int) (plan.Report, error) {
	return s.mutate(ctx, planID, func(p *plan.Plan) error {
		p.Unselect(courseID)
		return nil
	})
}

// ToggleOption flips one articulation option of a cell and reports whether
// it ended up selected.
func (s *Service) ToggleOption(ctx context.Context, planID, templateCellID string, option int) (bool, plan.Report, error) {
	var selected bool
	r, err := s.mutate(ctx, planID, func(p *plan.Plan) error {
		var err error
		selected, err = p.ToggleOption(templateCellID, option)
		return err
	})
	return selected, r, err
}

func (s *Service) mutate(ctx context.Context, planID string, fn func(*plan.Plan) error) (plan.Report, error) {
	p, err := s.Load(ctx, planID)
	if err != nil {
		return plan.Report{}, err
	}
	if err := fn(p); err != nil {
		return plan.Report{}, err
	}
	stored := make([]sqlite.Selection, len(p.Selections))
	for i, sel := range p.Selections {
		stored[i] = sqlite.Selection{Course: sel.Course, RequiredBy: sel.RequiredBy}
	}
	if err := sqlite.ReplaceSelections(s.db, planID, stored); err != nil {
		return plan.Report{}, fmt.Errorf("save selections: %w", err)
	}
	return p.Evaluate(), nil
}
