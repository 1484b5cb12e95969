package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/scheduler"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/lock"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type scheduleFacultyReader interface {
	ListActive(ctx context.Context) ([]models.Faculty, error)
	Count(ctx context.Context, activeOnly bool) (int, error)
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
}

type scheduleClassroomReader interface {
	ListActive(ctx context.Context) ([]models.Classroom, error)
	Count(ctx context.Context) (int, error)
}

type scheduleExamReader interface {
	Count(ctx context.Context) (int, error)
	SessionsByDate(ctx context.Context, date string) ([]models.ExamSession, error)
	DistinctDates(ctx context.Context) ([]string, error)
}

type allocationStore interface {
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, items []models.Allocation) error
	DeleteByDate(ctx context.Context, exec sqlx.ExtContext, date string) (int64, error)
	FindByID(ctx context.Context, id string) (*models.Allocation, error)
	FindViewByID(ctx context.Context, id string) (*models.AllocationView, error)
	ListViewsByDate(ctx context.Context, date string) ([]models.AllocationView, error)
	ListViewsByFaculty(ctx context.Context, facultyID string) ([]models.AllocationView, error)
	FindSlotConflict(ctx context.Context, exec sqlx.ExtContext, date, slot, classroomCode, facultyID, excludeID string) (string, error)
	UpdateInvigilator(ctx context.Context, exec sqlx.ExtContext, id, facultyID string, status models.AllocationStatus) error
	History(ctx context.Context, limit int) ([]models.DaySummary, error)
}

type constraintSnapshotter interface {
	Snapshot(ctx context.Context) (scheduler.Constraints, error)
}

// ScheduleServiceConfig tunes the allocation engine.
type ScheduleServiceConfig struct {
	SessionHours int
	Policy       string
	CacheTTL     time.Duration
}

// ScheduleService generates, clears and edits invigilation allocations.
type ScheduleService struct {
	faculty     scheduleFacultyReader
	classrooms  scheduleClassroomReader
	exams       scheduleExamReader
	allocations allocationStore
	constraints constraintSnapshotter
	tx          txProvider
	locker      lock.Locker
	cache       *CacheService
	metrics     *MetricsService
	engine      *scheduler.Engine
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ScheduleServiceConfig
}

// NewScheduleService wires the schedule dependencies. A nil locker falls back
// to an in-process KeyedMutex.
func NewScheduleService(
	faculty scheduleFacultyReader,
	classrooms scheduleClassroomReader,
	exams scheduleExamReader,
	allocations allocationStore,
	constraints constraintSnapshotter,
	tx txProvider,
	locker lock.Locker,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleServiceConfig,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if cfg.SessionHours <= 0 {
		cfg.SessionHours = 1
	}
	return &ScheduleService{
		faculty:     faculty,
		classrooms:  classrooms,
		exams:       exams,
		allocations: allocations,
		constraints: constraints,
		tx:          tx,
		locker:      locker,
		cache:       cache,
		metrics:     metrics,
		engine:      scheduler.New(scheduler.WithPolicy(scheduler.PolicyByName(cfg.Policy))),
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// Generate allocates invigilators for every exam session on date and stores
// the result. It never clears first: calling it twice for the same date
// stores two sets of rows. Use ClearDay or Regenerate to replace a day.
func (s *ScheduleService) Generate(ctx context.Context, rawDate string) (*dto.GenerateResult, error) {
	return s.run(ctx, rawDate, false)
}

// Regenerate clears date and generates it again under one lock and one
// transaction.
func (s *ScheduleService) Regenerate(ctx context.Context, rawDate string) (*dto.GenerateResult, error) {
	return s.run(ctx, rawDate, true)
}

func (s *ScheduleService) run(ctx context.Context, rawDate string, clear bool) (*dto.GenerateResult, error) {
	mode := "generate"
	if clear {
		mode = "regenerate"
	}
	start := time.Now()

	date, err := parseDate(rawDate)
	if err != nil {
		s.metrics.ObserveGenerate(mode, outcomeForError(err), 0, 0)
		return nil, err
	}

	release, err := s.acquire(ctx, lock.ScheduleKey(date))
	if err != nil {
		s.metrics.ObserveGenerate(mode, OutcomeFailed, 0, 0)
		return nil, err
	}
	defer release()

	constraints, sessions, err := s.checkPreconditions(ctx, date)
	if err != nil {
		s.metrics.ObserveGenerate(mode, outcomeForError(err), 0, 0)
		return nil, err
	}

	result, err := s.planAndPersist(ctx, date, constraints, sessions, clear)
	if err != nil {
		s.metrics.ObserveGenerate(mode, outcomeForError(err), 0, 0)
		return nil, err
	}

	outcome := OutcomeSuccess
	if result.Unassigned > 0 {
		outcome = OutcomePartial
	}
	s.metrics.ObserveGenerate(mode, outcome, result.Unassigned, time.Since(start))
	s.invalidateDay(ctx, date)

	s.logger.Info("schedule generated",
		zap.String("mode", mode),
		zap.String("date", date),
		zap.Int("count", result.Count),
		zap.Int("assigned", result.Assigned),
		zap.Int("unassigned", result.Unassigned),
		zap.Int("repaired", result.Repaired),
		zap.Int("cleared", result.Cleared),
		zap.Strings("skipped_classrooms", result.SkippedClassrooms),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// checkPreconditions runs the ordered checks that must pass before any
// allocation is attempted: constraints, uploaded data, then exams on the
// date. The caller has already validated date and holds its lock.
func (s *ScheduleService) checkPreconditions(ctx context.Context, date string) (scheduler.Constraints, []models.ExamSession, error) {
	constraints, err := s.constraints.Snapshot(ctx)
	if err != nil {
		return scheduler.Constraints{}, nil, err
	}
	if err := constraints.Validate(); err != nil {
		return scheduler.Constraints{}, nil, appErrors.ErrInvalidConstraint
	}

	if err := s.ensureUploaded(ctx); err != nil {
		return scheduler.Constraints{}, nil, err
	}

	sessions, err := s.exams.SessionsByDate(ctx, date)
	if err != nil {
		return scheduler.Constraints{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam sessions")
	}
	if len(sessions) == 0 {
		return scheduler.Constraints{}, nil, appErrors.Clone(appErrors.ErrExamNotAvailable, fmt.Sprintf("exam not available for %s", date))
	}
	return constraints, sessions, nil
}

func (s *ScheduleService) ensureUploaded(ctx context.Context) error {
	facultyCount, err := s.faculty.Count(ctx, false)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count faculty")
	}
	classroomCount, err := s.classrooms.Count(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classrooms")
	}
	examCount, err := s.exams.Count(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count exams")
	}
	return missingDataError(facultyCount, classroomCount, examCount)
}

func missingDataError(faculty, classrooms, exams int) error {
	var missing []string
	if faculty <= 0 {
		missing = append(missing, "faculty")
	}
	if classrooms <= 0 {
		missing = append(missing, "classrooms")
	}
	if exams <= 0 {
		missing = append(missing, "exams")
	}
	switch len(missing) {
	case 0:
		return nil
	case 3:
		return appErrors.ErrMissingData
	default:
		return appErrors.Clone(appErrors.ErrMissingData, strings.Join(missing, ", ")+" not uploaded")
	}
}

func (s *ScheduleService) planAndPersist(ctx context.Context, date string, constraints scheduler.Constraints, examSessions []models.ExamSession, clear bool) (result *dto.GenerateResult, err error) {
	pool, err := s.faculty.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	rooms, err := s.classrooms.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
	}

	sessions, skipped := filterSessions(examSessions, rooms)
	if len(sessions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrExamNotAvailable, fmt.Sprintf("exam not available for %s: no exam room is in the classroom roster", date))
	}

	faculty := make([]scheduler.Faculty, 0, len(pool))
	for _, f := range pool {
		faculty = append(faculty, scheduler.Faculty{ID: f.ID, Active: f.Active})
	}

	plan, err := s.engine.Plan(scheduler.Input{
		Date:         date,
		Sessions:     sessions,
		Faculty:      faculty,
		Constraints:  constraints,
		SessionHours: s.cfg.SessionHours,
	})
	if err != nil {
		return nil, mapSchedulerError(err)
	}

	rows := make([]models.Allocation, 0, len(plan.Assignments))
	for _, a := range plan.Assignments {
		row := models.Allocation{Date: plan.Date, Slot: string(a.Slot), ClassroomCode: a.ClassroomCode, Status: models.AllocationScheduled}
		if a.Assigned() {
			id := a.FacultyID
			row.InvigilatorID = &id
		}
		rows = append(rows, row)
	}

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var cleared int64
	if clear {
		if cleared, err = s.allocations.DeleteByDate(ctx, tx, date); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear allocations")
			return nil, err
		}
	}
	if err = s.allocations.BulkCreate(ctx, tx, rows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store allocations")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit allocations")
		return nil, err
	}

	return &dto.GenerateResult{
		Date:              plan.Date,
		Allocations:       rows,
		Count:             plan.Stats.Total,
		Assigned:          plan.Stats.Assigned,
		Unassigned:        plan.Stats.Unassigned,
		Repaired:          plan.Stats.Repaired,
		Cleared:           int(cleared),
		SkippedClassrooms: skipped,
	}, nil
}

// filterSessions keeps sessions whose room is an active classroom and
// returns the sorted list of rooms it dropped.
func filterSessions(in []models.ExamSession, rooms []models.Classroom) ([]scheduler.Session, []string) {
	known := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		if r.Active {
			known[scheduler.NormalizeClassroomCode(r.Code)] = struct{}{}
		}
	}
	out := make([]scheduler.Session, 0, len(in))
	skippedSet := make(map[string]struct{})
	for _, es := range in {
		code := scheduler.NormalizeClassroomCode(es.ClassroomCode)
		if _, ok := known[code]; !ok {
			skippedSet[code] = struct{}{}
			continue
		}
		out = append(out, scheduler.Session{Slot: scheduler.Slot(strings.ToUpper(strings.TrimSpace(es.Slot))), ClassroomCode: code})
	}
	var skipped []string
	for code := range skippedSet {
		skipped = append(skipped, code)
	}
	sort.Strings(skipped)
	return out, skipped
}

// ClearDay deletes every allocation on date. Clearing an empty day succeeds
// with zero.
func (s *ScheduleService) ClearDay(ctx context.Context, rawDate string) (*dto.ClearDayResult, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx, lock.ScheduleKey(date))
	if err != nil {
		return nil, err
	}
	defer release()

	deleted, err := s.allocations.DeleteByDate(ctx, nil, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear allocations")
	}
	s.invalidateDay(ctx, date)
	s.logger.Info("schedule cleared", zap.String("date", date), zap.Int64("deleted", deleted))
	return &dto.ClearDayResult{Date: date, Deleted: deleted}, nil
}

// Reassign moves one allocation to another active faculty member. Only the
// same-slot rule is enforced; daily caps are the admin's call.
func (s *ScheduleService) Reassign(ctx context.Context, allocationID string, req dto.ReassignRequest) (*models.AllocationView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "toFacultyId is required")
	}
	allocationID = strings.TrimSpace(allocationID)
	toFacultyID := strings.TrimSpace(req.ToFacultyID)

	release, err := s.acquire(ctx, lock.AllocationKey(allocationID))
	if err != nil {
		return nil, err
	}
	defer release()

	alloc, err := s.allocations.FindByID(ctx, allocationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation")
	}

	target, err := s.faculty.FindByID(ctx, toFacultyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	if !target.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found or inactive")
	}

	// Reassigns of different allocations into the same slot for the same
	// faculty must not both pass the conflict check.
	releaseSlot, err := s.acquire(ctx, lock.SlotKey(alloc.Date, alloc.Slot, target.ID))
	if err != nil {
		return nil, err
	}
	defer releaseSlot()

	if err := s.applyReassign(ctx, alloc, target.ID); err != nil {
		return nil, err
	}

	s.metrics.IncReassignment()
	s.invalidateDay(ctx, alloc.Date)
	s.logger.Info("allocation reassigned",
		zap.String("allocation_id", alloc.ID),
		zap.String("date", alloc.Date),
		zap.String("slot", alloc.Slot),
		zap.String("to_faculty_id", target.ID),
	)

	view, err := s.allocations.FindViewByID(ctx, alloc.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation")
	}
	return view, nil
}

func (s *ScheduleService) applyReassign(ctx context.Context, alloc *models.Allocation, facultyID string) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	conflictID, err := s.allocations.FindSlotConflict(ctx, tx, alloc.Date, alloc.Slot, alloc.ClassroomCode, facultyID, alloc.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot conflict")
		return err
	}
	if conflictID != "" {
		err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("faculty %s is already invigilating another classroom in %s on %s", facultyID, alloc.Slot, alloc.Date))
		return err
	}
	if err = s.allocations.UpdateInvigilator(ctx, tx, alloc.ID, facultyID, models.AllocationReassigned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "allocation not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reassign allocation")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit reassignment")
		return err
	}
	return nil
}

// Day returns the allocations of date joined with invigilator details. The
// bool reports a cache hit.
func (s *ScheduleService) Day(ctx context.Context, rawDate string) ([]models.AllocationView, bool, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, false, err
	}
	key := dayCacheKey(date)
	var cached []models.AllocationView
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, true, nil
	}

	items, err := s.allocations.ListViewsByDate(ctx, date)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}
	if items == nil {
		items = []models.AllocationView{}
	}
	_ = s.cache.Set(ctx, key, items, s.cfg.CacheTTL)
	return items, false, nil
}

// GetAllocation fetches one allocation with invigilator details.
func (s *ScheduleService) GetAllocation(ctx context.Context, id string) (*models.AllocationView, error) {
	view, err := s.allocations.FindViewByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation")
	}
	return view, nil
}

// ExamDates lists every date with at least one exam, ascending.
func (s *ScheduleService) ExamDates(ctx context.Context) ([]string, bool, error) {
	var cached []string
	if hit, _ := s.cache.Get(ctx, cacheKeyExamDates, &cached); hit {
		return cached, true, nil
	}
	dates, err := s.exams.DistinctDates(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam dates")
	}
	if dates == nil {
		dates = []string{}
	}
	sort.Strings(dates)
	_ = s.cache.Set(ctx, cacheKeyExamDates, dates, s.cfg.CacheTTL)
	return dates, false, nil
}

// History summarises stored allocations per date, newest first.
func (s *ScheduleService) History(ctx context.Context, limit int) ([]models.DaySummary, error) {
	items, err := s.allocations.History(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule history")
	}
	if items == nil {
		items = []models.DaySummary{}
	}
	return items, nil
}

// MyAllocations lists every allocation held by facultyID.
func (s *ScheduleService) MyAllocations(ctx context.Context, facultyID string) ([]models.AllocationView, error) {
	if strings.TrimSpace(facultyID) == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account is not linked to a faculty member")
	}
	items, err := s.allocations.ListViewsByFaculty(ctx, facultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}
	if items == nil {
		items = []models.AllocationView{}
	}
	return items, nil
}

func (s *ScheduleService) acquire(ctx context.Context, key string) (func(), error) {
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "another schedule operation is in progress, try again")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire schedule lock")
	}
	return release, nil
}

func (s *ScheduleService) invalidateDay(ctx context.Context, date string) {
	_ = s.cache.Invalidate(ctx, dayCacheKey(date))
}

func parseDate(raw string) (string, error) {
	date, err := scheduler.ParseDate(raw)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return date, nil
}

func mapSchedulerError(err error) error {
	switch {
	case errors.Is(err, scheduler.ErrDateRequired), errors.Is(err, scheduler.ErrInvalidDate):
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	case errors.Is(err, scheduler.ErrInvalidConstraint):
		return appErrors.ErrInvalidConstraint
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid exam session data")
	}
}

func outcomeForError(err error) string {
	switch appErrors.FromError(err).Status {
	case 400, 409, 422:
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}
