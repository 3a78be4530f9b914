package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/school-platform/attendance-service/internal/store"
)

var allRoles = []Role{
	RoleDirector, RolePrimaryTeacher, RoleSecondaryTeacher, RoleTutor,
	RoleAuxiliary, RoleAdministrative, RoleGuardian,
}

func TestRoleStaffKind(t *testing.T) {
	tests := []struct {
		role Role
		kind ActorKind
		ok   bool
	}{
		{RoleDirector, KindDirector, true},
		{RolePrimaryTeacher, KindPrimaryTeacher, true},
		{RoleSecondaryTeacher, KindSecondTeacher, true},
		{RoleTutor, KindSecondTeacher, true},
		{RoleAuxiliary, KindAuxiliary, true},
		{RoleAdministrative, KindAdministrative, true},
		{RoleGuardian, "", false},
		{Role("unknown"), "", false},
	}

	for _, tt := range tests {
		kind, ok := tt.role.StaffKind()
		assert.Equal(t, tt.ok, ok, "role %s", tt.role)
		assert.Equal(t, tt.kind, kind, "role %s", tt.role)
	}
}

func TestPopulationGroup(t *testing.T) {
	assert.Equal(t, store.GroupStaff, PopulationStaff.Group())
	assert.Equal(t, store.GroupPrimary, PopulationPrimary.Group())
	assert.Equal(t, store.GroupSecondary, PopulationSecondary.Group())
}

func TestCanMarkOwn(t *testing.T) {
	for _, role := range allRoles {
		err := CanMarkOwn(role)
		if role == RoleGuardian {
			assert.True(t, store.IsPermissionDenied(err), "guardian must be denied")
			continue
		}
		assert.NoError(t, err, "role %s", role)
	}
}

func TestCanMarkStaff(t *testing.T) {
	// Only directors, and only for staff kinds.
	assert.NoError(t, CanMarkStaff(RoleDirector, KindAuxiliary))
	assert.NoError(t, CanMarkStaff(RoleDirector, KindDirector))
	assert.True(t, store.IsPermissionDenied(CanMarkStaff(RoleDirector, KindStudent)))

	for _, role := range allRoles {
		if role == RoleDirector {
			continue
		}
		assert.True(t, store.IsPermissionDenied(CanMarkStaff(role, KindAuxiliary)), "role %s", role)
	}
}

func TestCanMarkStudent(t *testing.T) {
	tests := []struct {
		role       Role
		population Population
		allowed    bool
	}{
		{RolePrimaryTeacher, PopulationPrimary, true},
		{RolePrimaryTeacher, PopulationSecondary, false},
		{RoleAuxiliary, PopulationSecondary, true},
		{RoleAuxiliary, PopulationPrimary, false},
		{RoleDirector, PopulationPrimary, false},
		{RoleSecondaryTeacher, PopulationSecondary, false},
		{RoleGuardian, PopulationPrimary, false},
	}

	for _, tt := range tests {
		err := CanMarkStudent(tt.role, tt.population)
		if tt.allowed {
			assert.NoError(t, err, "%s/%s", tt.role, tt.population)
		} else {
			assert.True(t, store.IsPermissionDenied(err), "%s/%s", tt.role, tt.population)
		}
	}
}

func TestCanDiscard(t *testing.T) {
	for _, role := range allRoles {
		err := CanDiscard(role)
		if role == RoleDirector {
			assert.NoError(t, err)
			continue
		}
		assert.True(t, store.IsPermissionDenied(err), "role %s", role)
	}
}

func TestCanOpenWindow(t *testing.T) {
	tests := []struct {
		role       Role
		population Population
		allowed    bool
	}{
		{RoleDirector, PopulationStaff, true},
		{RoleDirector, PopulationPrimary, true},
		{RoleDirector, PopulationSecondary, true},
		{RoleAuxiliary, PopulationSecondary, true},
		{RoleAuxiliary, PopulationPrimary, false},
		{RoleAuxiliary, PopulationStaff, false},
		{RolePrimaryTeacher, PopulationPrimary, true},
		{RolePrimaryTeacher, PopulationSecondary, false},
		{RoleSecondaryTeacher, PopulationSecondary, false},
		{RoleGuardian, PopulationStaff, false},
	}

	for _, tt := range tests {
		err := CanOpenWindow(tt.role, tt.population)
		if tt.allowed {
			assert.NoError(t, err, "%s/%s", tt.role, tt.population)
		} else {
			assert.True(t, store.IsPermissionDenied(err), "%s/%s", tt.role, tt.population)
		}
	}
}
