package attendance

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/school-platform/attendance-service/internal/loggingclient"
	"github.com/school-platform/attendance-service/internal/observability"
	"github.com/school-platform/attendance-service/internal/replicated"
	"github.com/school-platform/attendance-service/internal/store"
)

// tombstoneTTL bounds the resurrection window of a discarded record on a
// lagging replica.
const tombstoneTTL = 10 * time.Second

// Identity is the authenticated caller, resolved by the identity layer
// before any registration call.
type Identity struct {
	Role   Role
	UserID string
}

// Level literals as they appear in student keys.
const (
	LevelPrimary   = "Primaria"
	LevelSecondary = "Secundaria"
)

// MarkRequest is one registration request. Exactly one of the three request
// shapes must match:
//   - own-registration: no staff or student fields; the actor is the caller.
//   - staff-registration: StaffID and StaffKind set, no student fields.
//   - student-registration: Level, Grade, Section and StudentID set.
type MarkRequest struct {
	Mode       Mode
	ExpectedAt time.Time

	StaffID   string
	StaffKind ActorKind

	Level     string
	Grade     string
	Section   string
	StudentID string
}

// MarkOutcome reports whether a registration created a new record.
type MarkOutcome int

const (
	// OutcomeCreated means the record was written for the first time.
	OutcomeCreated MarkOutcome = iota
	// OutcomeAlreadyExists means the record was already present; the call
	// was an idempotent no-op and the stored value was left untouched.
	OutcomeAlreadyExists
)

// String returns the outcome name.
func (o MarkOutcome) String() string {
	if o == OutcomeAlreadyExists {
		return "already_exists"
	}
	return "created"
}

// MarkResult is the outcome of one registration request.
type MarkResult struct {
	Outcome    MarkOutcome
	Key        string
	Mark       Mark
	TTLSeconds int
	Population Population
}

// MarkStatus is the outcome of a status query for one record key.
type MarkStatus struct {
	Found bool
	Mark  Mark
	Key   string
}

// RegistrationService orchestrates permission validation, key construction
// and the idempotent write of attendance marks.
type RegistrationService struct {
	cache   *replicated.Client
	policy  *ExpirationPolicy
	logger  *loggingclient.Client
	metrics *observability.Metrics
}

// NewRegistrationService creates a registration service.
func NewRegistrationService(cache *replicated.Client, policy *ExpirationPolicy, logger *loggingclient.Client, metrics *observability.Metrics) *RegistrationService {
	if logger == nil {
		logger = loggingclient.NewNoop()
	}
	return &RegistrationService{
		cache:   cache,
		policy:  policy,
		logger:  logger,
		metrics: metrics,
	}
}

// requestShape classifies a MarkRequest.
type requestShape int

const (
	shapeOwn requestShape = iota
	shapeStaff
	shapeStudent
)

// classify determines which of the three mutually exclusive request shapes
// the input matches. Matching zero or more than one shape is a validation
// error.
func classify(req MarkRequest) (requestShape, error) {
	hasStaff := req.StaffID != "" || req.StaffKind != ""
	hasStudent := req.StudentID != "" || req.Level != "" || req.Grade != "" || req.Section != ""

	switch {
	case hasStaff && hasStudent:
		return 0, store.WrapError(store.ErrInvalidRequest,
			"request mixes staff-registration and student-registration fields", nil)
	case hasStaff:
		if req.StaffID == "" || req.StaffKind == "" {
			return 0, store.WrapError(store.ErrInvalidRequest,
				"staff-registration requires both staff id and staff kind", nil)
		}
		return shapeStaff, nil
	case hasStudent:
		if req.StudentID == "" || req.Level == "" || req.Grade == "" || req.Section == "" {
			return 0, store.WrapError(store.ErrInvalidRequest,
				"student-registration requires level, grade, section and student id", nil)
		}
		return shapeStudent, nil
	default:
		return shapeOwn, nil
	}
}

// populationForLevel maps the level key component to its population.
func populationForLevel(level string) (Population, error) {
	switch level {
	case LevelPrimary:
		return PopulationPrimary, nil
	case LevelSecondary:
		return PopulationSecondary, nil
	default:
		return "", store.WrapError(store.ErrInvalidRequest,
			fmt.Sprintf("unknown level %q", level), nil)
	}
}

// Register marks one attendance event. The write is idempotent: the first
// call of a civil day creates the record, later calls for the same key
// report OutcomeAlreadyExists without overwriting it.
//
// The existence check and the conditional write are separate steps against
// an eventually-consistent store, so the first-writer-wins guarantee is
// probabilistic under truly concurrent duplicates; SETNX keeps each single
// instance from being overwritten either way.
func (s *RegistrationService) Register(ctx context.Context, caller Identity, req MarkRequest) (*MarkResult, error) {
	if !caller.Role.Valid() || caller.UserID == "" {
		return nil, store.WrapError(store.ErrInvalidRequest, "caller identity is incomplete", nil)
	}
	if !req.Mode.Valid() {
		return nil, store.WrapError(store.ErrInvalidRequest, "unknown registration mode", nil)
	}
	if req.ExpectedAt.IsZero() {
		return nil, store.WrapError(store.ErrInvalidRequest, "expected schedule time is required", nil)
	}

	shape, err := classify(req)
	if err != nil {
		return nil, err
	}

	now := s.policy.Now()
	date := s.policy.CivilDate()
	offset := int64(now.Sub(req.ExpectedAt) / time.Second)

	var (
		key        string
		mark       Mark
		population Population
	)

	switch shape {
	case shapeOwn:
		if err := CanMarkOwn(caller.Role); err != nil {
			return nil, err
		}
		kind, _ := caller.Role.StaffKind()
		population = PopulationStaff
		mark = StaffMark{MarkedAt: now.UnixMilli(), OffsetSeconds: offset}
		key, err = BuildStaffKey(date, req.Mode, kind, caller.UserID)

	case shapeStaff:
		if err := CanMarkStaff(caller.Role, req.StaffKind); err != nil {
			return nil, err
		}
		population = PopulationStaff
		mark = StaffMark{MarkedAt: now.UnixMilli(), OffsetSeconds: offset}
		key, err = BuildStaffKey(date, req.Mode, req.StaffKind, req.StaffID)

	case shapeStudent:
		population, err = populationForLevel(req.Level)
		if err != nil {
			return nil, err
		}
		if err := CanMarkStudent(caller.Role, population); err != nil {
			return nil, err
		}
		mark = StudentMark{OffsetSeconds: offset}
		key, err = BuildStudentKey(date, req.Mode, req.Level, req.Grade, req.Section, req.StudentID)
	}
	if err != nil {
		return nil, err
	}

	group := population.Group()

	existing, err := s.cache.Get(ctx, group, key)
	switch {
	case err == nil && !IsTombstone(existing):
		stored, decodeErr := DecodeMark(existing)
		if decodeErr != nil {
			return nil, decodeErr
		}
		s.recordOutcome(population, OutcomeAlreadyExists)
		return &MarkResult{
			Outcome:    OutcomeAlreadyExists,
			Key:        key,
			Mark:       stored,
			Population: population,
		}, nil
	case err != nil && !store.IsNotFound(err):
		return nil, err
	}

	encoded, err := EncodeMark(mark)
	if err != nil {
		return nil, err
	}

	ttlSeconds := s.policy.SecondsUntilCutoff()
	ttl := time.Duration(ttlSeconds) * time.Second

	created, err := s.cache.SetIfAbsent(ctx, group, key, encoded, ttl, store.FanOutStrict)
	if err != nil {
		return nil, err
	}
	if created == 0 {
		// A concurrent duplicate won the race on every instance. Re-read so
		// this outcome carries the stored mark like the read-check path.
		s.recordOutcome(population, OutcomeAlreadyExists)
		result := &MarkResult{
			Outcome:    OutcomeAlreadyExists,
			Key:        key,
			Population: population,
		}
		if value, getErr := s.cache.Get(ctx, group, key); getErr == nil && !IsTombstone(value) {
			if stored, decodeErr := DecodeMark(value); decodeErr == nil {
				result.Mark = stored
			}
		}
		return result, nil
	}
	if created < s.cacheInstances(group) {
		s.logger.Warn(ctx, "conditional write landed on a subset of instances",
			loggingclient.String("group", group.String()),
			loggingclient.String("key", key),
			loggingclient.Int("created", created),
		)
		s.overwriteTombstoneBlocks(ctx, group, key, encoded, ttl)
	}

	s.recordOutcome(population, OutcomeCreated)
	s.bumpDailyCounter(ctx, group, date, req.Mode)

	s.logger.Info(ctx, "attendance mark recorded",
		loggingclient.String("group", group.String()),
		loggingclient.String("key", key),
		loggingclient.Int("ttl_seconds", ttlSeconds),
		loggingclient.Int64("offset_seconds", mark.Offset()),
	)

	return &MarkResult{
		Outcome:    OutcomeCreated,
		Key:        key,
		Mark:       mark,
		TTLSeconds: ttlSeconds,
		Population: population,
	}, nil
}

// overwriteTombstoneBlocks repairs a partial conditional write. A discard
// tombstone that is still live blocks SETNX on the instances the final
// delete did not clear, which would strand a re-registered record on a
// subset of the group until cutoff. A tombstone is not a competing mark, so
// when nothing but tombstones or this write's own value holds the remaining
// instances the record is re-broadcast with a plain set. A foreign mark on
// any instance means a concurrent duplicate won there; first-writer-wins
// leaves it untouched.
func (s *RegistrationService) overwriteTombstoneBlocks(ctx context.Context, group store.Group, key string, encoded []byte, ttl time.Duration) {
	reads, err := s.cache.ReadAll(ctx, group, key)
	if err != nil {
		s.logger.Warn(ctx, "partial write repair read failed",
			loggingclient.String("group", group.String()),
			loggingclient.String("key", key),
			loggingclient.Error(err),
		)
		return
	}
	for _, r := range reads {
		if r.Err != nil || r.Absent {
			continue
		}
		if !IsTombstone(r.Value) && !bytes.Equal(r.Value, encoded) {
			return
		}
	}
	if err := s.cache.Set(ctx, group, key, encoded, ttl, store.FanOutStrict); err != nil {
		s.logger.Warn(ctx, "partial write repair fan-out failed",
			loggingclient.String("group", group.String()),
			loggingclient.String("key", key),
			loggingclient.Error(err),
		)
	}
}

// Status reads one record key and decodes its mark, if present. Absence,
// including after natural TTL expiry, is not an error.
func (s *RegistrationService) Status(ctx context.Context, key string) (*MarkStatus, error) {
	parsed, err := ParseKey(key)
	if err != nil {
		return nil, err
	}

	value, err := s.cache.Get(ctx, groupForKey(parsed), key)
	if err != nil {
		if store.IsNotFound(err) {
			return &MarkStatus{Found: false, Key: key}, nil
		}
		return nil, err
	}
	if IsTombstone(value) {
		return &MarkStatus{Found: false, Key: key}, nil
	}

	mark, err := DecodeMark(value)
	if err != nil {
		return nil, err
	}
	return &MarkStatus{Found: true, Mark: mark, Key: key}, nil
}

// Discard removes a record via the tombstone-then-delete pattern: the value
// is first nulled with a short TTL across all instances, then deleted from
// one, so a lagging replica cannot resurrect it.
func (s *RegistrationService) Discard(ctx context.Context, caller Identity, key string) error {
	if err := CanDiscard(caller.Role); err != nil {
		return err
	}
	parsed, err := ParseKey(key)
	if err != nil {
		return err
	}
	group := groupForKey(parsed)

	if err := s.cache.Set(ctx, group, key, tombstone, tombstoneTTL, store.FanOutStrict); err != nil {
		return err
	}
	if _, err := s.cache.Delete(ctx, group, key); err != nil {
		return err
	}

	s.logger.Info(ctx, "attendance mark discarded",
		loggingclient.String("group", group.String()),
		loggingclient.String("key", key),
	)
	return nil
}

// CheckConsistency exposes the diagnostic cross-instance read for one key.
func (s *RegistrationService) CheckConsistency(ctx context.Context, key string) (store.ConsistencyReport, error) {
	parsed, err := ParseKey(key)
	if err != nil {
		return store.ConsistencyReport{}, err
	}
	return s.cache.CheckConsistency(ctx, groupForKey(parsed), key)
}

// groupForKey resolves the instance group a parsed key belongs to.
func groupForKey(k Key) store.Group {
	if !k.IsStudent() {
		return store.GroupStaff
	}
	if k.Level == LevelPrimary {
		return store.GroupPrimary
	}
	return store.GroupSecondary
}

// bumpDailyCounter maintains a per-day per-mode mark counter. Non-critical:
// failures are logged and swallowed.
func (s *RegistrationService) bumpDailyCounter(ctx context.Context, group store.Group, date time.Time, mode Mode) {
	counterKey := fmt.Sprintf("%s:conteo:%s", date.Format(civilDateFmt), mode)
	value, err := s.cache.Increment(ctx, group, counterKey)
	if err != nil {
		s.logger.Warn(ctx, "daily counter increment failed",
			loggingclient.String("group", group.String()),
			loggingclient.String("key", counterKey),
			loggingclient.Error(err),
		)
		return
	}
	if value == 1 {
		// First mark of the day scopes the counter to the civil day.
		_ = s.cache.Expire(ctx, group, counterKey, s.policy.DayTTL(), store.FanOutBestEffort)
	}
}

func (s *RegistrationService) recordOutcome(population Population, outcome MarkOutcome) {
	if s.metrics != nil {
		s.metrics.MarksTotal.WithLabelValues(string(population), outcome.String()).Inc()
	}
}

func (s *RegistrationService) cacheInstances(group store.Group) int {
	return s.cache.InstanceCount(group)
}
