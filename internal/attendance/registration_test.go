package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/school-platform/attendance-service/internal/config"
	"github.com/school-platform/attendance-service/internal/pool"
	"github.com/school-platform/attendance-service/internal/replicated"
	"github.com/school-platform/attendance-service/internal/store"
)

// testNow is 08:07:30 on 2024-03-11 in the UTC-5 civil timezone.
var testNow = time.Date(2024, 3, 11, 13, 7, 30, 0, time.UTC)

// testExpected is the 08:00 scheduled start, so marks land 450 seconds late.
var testExpected = time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC)

type registrationEnv struct {
	servers map[store.Group][]*miniredis.Miniredis
	cache   *replicated.Client
	service *RegistrationService
	flags   *FlagService
}

func newRegistrationEnv(t *testing.T, instancesPerGroup int) *registrationEnv {
	t.Helper()

	servers := make(map[store.Group][]*miniredis.Miniredis)
	clients := make(map[store.Group][]*redis.Client)
	for _, group := range store.Groups {
		for i := 0; i < instancesPerGroup; i++ {
			srv := miniredis.RunT(t)
			servers[group] = append(servers[group], srv)
			clients[group] = append(clients[group], redis.NewClient(&redis.Options{Addr: srv.Addr()}))
		}
	}

	cache := replicated.New(pool.NewFromClients(clients), nil, nil)
	policy, err := NewExpirationPolicy(config.AttendanceConfig{
		TimezoneOffsetHours: -5,
		CutoffHour:          20,
	}, fixedClock(testNow))
	require.NoError(t, err)

	return &registrationEnv{
		servers: servers,
		cache:   cache,
		service: NewRegistrationService(cache, policy, nil, nil),
		flags:   NewFlagService(cache, policy, nil),
	}
}

func TestRegisterOwnStaffMark(t *testing.T) {
	env := newRegistrationEnv(t, 3)
	caller := Identity{Role: RoleDirector, UserID: "12345678"}

	result, err := env.service.Register(context.Background(), caller, MarkRequest{
		Mode:       ModeEntry,
		ExpectedAt: testExpected,
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, "2024-03-11:Entrada:director:12345678", result.Key)
	assert.Equal(t, PopulationStaff, result.Population)
	assert.Equal(t, int64(450), result.Mark.Offset())
	// Cutoff is 20:00 local, now is 08:07:30 local.
	assert.Equal(t, 11*3600+52*60+30, result.TTLSeconds)

	// The write fans out to every staff instance, with the cutoff TTL.
	for _, srv := range env.servers[store.GroupStaff] {
		value, err := srv.Get(result.Key)
		require.NoError(t, err)
		assert.Equal(t, `["1710162450000","450"]`, value)
		assert.Greater(t, srv.TTL(result.Key), time.Duration(0))
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	env := newRegistrationEnv(t, 3)
	caller := Identity{Role: RoleAuxiliary, UserID: "auxiliar-1"}
	req := MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected}

	first, err := env.service.Register(context.Background(), caller, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, first.Outcome)

	second, err := env.service.Register(context.Background(), caller, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyExists, second.Outcome)
	assert.Equal(t, first.Key, second.Key)
	// The stored mark survives untouched.
	assert.Equal(t, first.Mark, second.Mark)
}

func TestRegisterConditionalWriteLosesRace(t *testing.T) {
	env := newRegistrationEnv(t, 2)
	caller := Identity{Role: RoleAdministrative, UserID: "admin-9"}
	key := "2024-03-11:Entrada:administrativo:admin-9"

	// Simulate a duplicate that lands between the read and the conditional
	// write on every instance: the read path misses because only SETNX-time
	// state matters here.
	for _, srv := range env.servers[store.GroupStaff] {
		// miniredis shares no state across instances; seed each directly.
		require.NoError(t, srv.Set(key, `["1710162000000","0"]`))
	}

	result, err := env.service.Register(context.Background(), caller, MarkRequest{
		Mode:       ModeEntry,
		ExpectedAt: testExpected,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyExists, result.Outcome)
	// The losing call still reports the mark the winner stored.
	assert.Equal(t, StaffMark{MarkedAt: 1710162000000, OffsetSeconds: 0}, result.Mark)
}

func TestReRegisterOverwritesLiveTombstones(t *testing.T) {
	env := newRegistrationEnv(t, 3)
	ctx := context.Background()
	director := Identity{Role: RoleDirector, UserID: "12345678"}
	req := MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected}

	first, err := env.service.Register(ctx, director, req)
	require.NoError(t, err)
	require.NoError(t, env.service.Discard(ctx, director, first.Key))

	// The discard's delete cleared one instance; the tombstone is still live
	// on the others and blocks the conditional write there.
	again, err := env.service.Register(ctx, director, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, again.Outcome)

	for _, srv := range env.servers[store.GroupStaff] {
		value, err := srv.Get(first.Key)
		require.NoError(t, err)
		assert.Equal(t, `["1710162450000","450"]`, value, "every instance holds the re-registered mark")
		assert.Greater(t, srv.TTL(first.Key), time.Duration(0))
	}
}

func TestPartialWriteRepairLeavesForeignMarks(t *testing.T) {
	env := newRegistrationEnv(t, 2)
	key := "2024-03-11:Entrada:director:d-1"
	own := []byte(`["1710162450000","450"]`)

	// Instance 0 holds a concurrent duplicate's mark, instance 1 this
	// write's own value. The repair must not overwrite the duplicate.
	require.NoError(t, env.servers[store.GroupStaff][0].Set(key, `["1710160000000","100"]`))
	require.NoError(t, env.servers[store.GroupStaff][1].Set(key, string(own)))

	env.service.overwriteTombstoneBlocks(context.Background(), store.GroupStaff, key, own, time.Hour)

	value, err := env.servers[store.GroupStaff][0].Get(key)
	require.NoError(t, err)
	assert.Equal(t, `["1710160000000","100"]`, value)
}

func TestRegisterStaffByDirector(t *testing.T) {
	env := newRegistrationEnv(t, 2)
	director := Identity{Role: RoleDirector, UserID: "director-1"}

	result, err := env.service.Register(context.Background(), director, MarkRequest{
		Mode:       ModeExit,
		ExpectedAt: testExpected,
		StaffID:    "87654321",
		StaffKind:  KindSecondTeacher,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11:Salida:docente_secundaria:87654321", result.Key)
	assert.Equal(t, PopulationStaff, result.Population)
}

func TestRegisterStaffDeniedForNonDirectors(t *testing.T) {
	env := newRegistrationEnv(t, 1)
	auxiliary := Identity{Role: RoleAuxiliary, UserID: "aux-1"}

	_, err := env.service.Register(context.Background(), auxiliary, MarkRequest{
		Mode:       ModeEntry,
		ExpectedAt: testExpected,
		StaffID:    "87654321",
		StaffKind:  KindAuxiliary,
	})
	assert.True(t, store.IsPermissionDenied(err))
}

func TestRegisterStudentRoutesByLevel(t *testing.T) {
	tests := []struct {
		name  string
		role  Role
		level string
		group store.Group
	}{
		{"primary teacher marks primary", RolePrimaryTeacher, LevelPrimary, store.GroupPrimary},
		{"auxiliary marks secondary", RoleAuxiliary, LevelSecondary, store.GroupSecondary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newRegistrationEnv(t, 2)
			caller := Identity{Role: tt.role, UserID: "teacher-1"}

			result, err := env.service.Register(context.Background(), caller, MarkRequest{
				Mode:       ModeEntry,
				ExpectedAt: testExpected,
				Level:      tt.level,
				Grade:      "3",
				Section:    "A",
				StudentID:  "stu-100",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.group, result.Population.Group())

			// Student marks carry only the offset, and land in the level's
			// own group.
			for _, srv := range env.servers[tt.group] {
				value, err := srv.Get(result.Key)
				require.NoError(t, err)
				assert.Equal(t, `["450"]`, value)
			}
		})
	}
}

func TestRegisterStudentDeniedAcrossLevels(t *testing.T) {
	env := newRegistrationEnv(t, 1)

	_, err := env.service.Register(context.Background(),
		Identity{Role: RolePrimaryTeacher, UserID: "t-1"},
		MarkRequest{
			Mode:       ModeEntry,
			ExpectedAt: testExpected,
			Level:      LevelSecondary,
			Grade:      "1",
			Section:    "B",
			StudentID:  "stu-7",
		})
	assert.True(t, store.IsPermissionDenied(err))
}

func TestRegisterValidation(t *testing.T) {
	env := newRegistrationEnv(t, 1)
	caller := Identity{Role: RoleDirector, UserID: "d-1"}

	tests := []struct {
		name   string
		caller Identity
		req    MarkRequest
	}{
		{
			name:   "unknown mode",
			caller: caller,
			req:    MarkRequest{Mode: "Almuerzo", ExpectedAt: testExpected},
		},
		{
			name:   "missing expected time",
			caller: caller,
			req:    MarkRequest{Mode: ModeEntry},
		},
		{
			name:   "mixed staff and student fields",
			caller: caller,
			req: MarkRequest{
				Mode: ModeEntry, ExpectedAt: testExpected,
				StaffID: "s-1", StaffKind: KindAuxiliary, StudentID: "stu-1",
			},
		},
		{
			name:   "partial staff fields",
			caller: caller,
			req:    MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected, StaffID: "s-1"},
		},
		{
			name:   "partial student fields",
			caller: caller,
			req:    MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected, StudentID: "stu-1"},
		},
		{
			name:   "unknown level",
			caller: caller,
			req: MarkRequest{
				Mode: ModeEntry, ExpectedAt: testExpected,
				Level: "Inicial", Grade: "1", Section: "A", StudentID: "stu-1",
			},
		},
		{
			name:   "incomplete identity",
			caller: Identity{Role: RoleDirector},
			req:    MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Register(context.Background(), tt.caller, tt.req)
			assert.True(t, store.IsValidation(err), "got %v", err)
		})
	}
}

func TestRegisterBumpsDailyCounter(t *testing.T) {
	env := newRegistrationEnv(t, 2)
	ctx := context.Background()

	_, err := env.service.Register(ctx, Identity{Role: RoleDirector, UserID: "d-1"},
		MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected})
	require.NoError(t, err)
	_, err = env.service.Register(ctx, Identity{Role: RoleAuxiliary, UserID: "a-1"},
		MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected})
	require.NoError(t, err)

	// The increment repair fan-out propagates the counter to every instance.
	counterKey := "2024-03-11:conteo:Entrada"
	for _, srv := range env.servers[store.GroupStaff] {
		value, err := srv.Get(counterKey)
		require.NoError(t, err)
		assert.Equal(t, "2", value)
	}
}

func TestStatus(t *testing.T) {
	env := newRegistrationEnv(t, 1)
	ctx := context.Background()
	caller := Identity{Role: RoleDirector, UserID: "12345678"}

	result, err := env.service.Register(ctx, caller, MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected})
	require.NoError(t, err)

	status, err := env.service.Status(ctx, result.Key)
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.Equal(t, result.Mark, status.Mark)

	// Absent key is not an error.
	status, err = env.service.Status(ctx, "2024-03-11:Salida:director:12345678")
	require.NoError(t, err)
	assert.False(t, status.Found)

	// Malformed key is.
	_, err = env.service.Status(ctx, "not-a-key")
	assert.True(t, store.IsValidation(err))
}

func TestMarkExpiresAtCutoff(t *testing.T) {
	env := newRegistrationEnv(t, 1)
	ctx := context.Background()

	result, err := env.service.Register(ctx, Identity{Role: RoleDirector, UserID: "d-1"},
		MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected})
	require.NoError(t, err)

	env.servers[store.GroupStaff][0].FastForward(time.Duration(result.TTLSeconds+1) * time.Second)

	status, err := env.service.Status(ctx, result.Key)
	require.NoError(t, err)
	assert.False(t, status.Found, "expired mark reads as absent")
}

func TestStatusTreatsTombstoneAsAbsent(t *testing.T) {
	env := newRegistrationEnv(t, 1)
	key := "2024-03-11:Entrada:director:12345678"
	require.NoError(t, env.servers[store.GroupStaff][0].Set(key, "null"))

	status, err := env.service.Status(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, status.Found)
}

func TestDiscard(t *testing.T) {
	env := newRegistrationEnv(t, 3)
	ctx := context.Background()
	director := Identity{Role: RoleDirector, UserID: "d-1"}

	result, err := env.service.Register(ctx, director, MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected})
	require.NoError(t, err)

	require.NoError(t, env.service.Discard(ctx, director, result.Key))

	// Every instance now holds either the short-lived tombstone or nothing;
	// the original mark never survives.
	for _, srv := range env.servers[store.GroupStaff] {
		value, err := srv.Get(result.Key)
		if err == nil {
			assert.Equal(t, "null", value)
			continue
		}
		assert.ErrorIs(t, err, miniredis.ErrKeyNotFound)
	}

	status, err := env.service.Status(ctx, result.Key)
	require.NoError(t, err)
	assert.False(t, status.Found)
}

func TestDiscardRequiresDirector(t *testing.T) {
	env := newRegistrationEnv(t, 1)

	err := env.service.Discard(context.Background(),
		Identity{Role: RoleAuxiliary, UserID: "a-1"},
		"2024-03-11:Entrada:auxiliar:a-1")
	assert.True(t, store.IsPermissionDenied(err))
}

func TestCheckConsistencyAfterRegistration(t *testing.T) {
	env := newRegistrationEnv(t, 3)
	ctx := context.Background()

	result, err := env.service.Register(ctx, Identity{Role: RoleDirector, UserID: "d-1"},
		MarkRequest{Mode: ModeEntry, ExpectedAt: testExpected})
	require.NoError(t, err)

	report, err := env.service.CheckConsistency(ctx, result.Key)
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
	assert.Equal(t, 3, report.RespondingInstances)
	assert.Equal(t, 3, report.ConfiguredInstances)
}

func TestFlagOpenAndIsOpen(t *testing.T) {
	env := newRegistrationEnv(t, 2)
	ctx := context.Background()
	director := Identity{Role: RoleDirector, UserID: "d-1"}

	open, err := env.flags.IsOpen(ctx, PopulationSecondary)
	require.NoError(t, err)
	assert.False(t, open, "window starts closed")

	require.NoError(t, env.flags.Open(ctx, director, PopulationSecondary))

	open, err = env.flags.IsOpen(ctx, PopulationSecondary)
	require.NoError(t, err)
	assert.True(t, open)

	// The flag lives in the population's own group, scoped by TTL.
	for _, srv := range env.servers[store.GroupSecondary] {
		value, err := srv.Get("registroAsistenciaSecundaria")
		require.NoError(t, err)
		assert.Equal(t, "true", value)
		assert.Greater(t, srv.TTL("registroAsistenciaSecundaria"), time.Duration(0))
	}

	// Other populations stay closed.
	open, err = env.flags.IsOpen(ctx, PopulationPrimary)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestFlagOpenPermissions(t *testing.T) {
	env := newRegistrationEnv(t, 1)
	ctx := context.Background()

	err := env.flags.Open(ctx, Identity{Role: RoleGuardian, UserID: "g-1"}, PopulationStaff)
	assert.True(t, store.IsPermissionDenied(err))

	err = env.flags.Open(ctx, Identity{Role: RoleAuxiliary, UserID: "a-1"}, PopulationPrimary)
	assert.True(t, store.IsPermissionDenied(err))

	require.NoError(t, env.flags.Open(ctx, Identity{Role: RoleAuxiliary, UserID: "a-1"}, PopulationSecondary))
	require.NoError(t, env.flags.Open(ctx, Identity{Role: RolePrimaryTeacher, UserID: "t-1"}, PopulationPrimary))
}
