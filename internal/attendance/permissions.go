package attendance

import (
	"fmt"

	"github.com/school-platform/attendance-service/internal/store"
)

// Role is the authenticated caller's role, supplied by the identity layer.
type Role string

const (
	RoleDirector         Role = "director"
	RolePrimaryTeacher   Role = "primary_teacher"
	RoleSecondaryTeacher Role = "secondary_teacher"
	RoleTutor            Role = "tutor"
	RoleAuxiliary        Role = "auxiliary"
	RoleAdministrative   Role = "administrative"
	RoleGuardian         Role = "guardian"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleDirector, RolePrimaryTeacher, RoleSecondaryTeacher, RoleTutor,
		RoleAuxiliary, RoleAdministrative, RoleGuardian:
		return true
	}
	return false
}

// StaffKind maps a staff role to the actor kind recorded in its own marks.
// Guardians have no staff kind.
func (r Role) StaffKind() (ActorKind, bool) {
	switch r {
	case RoleDirector:
		return KindDirector, true
	case RolePrimaryTeacher:
		return KindPrimaryTeacher, true
	case RoleSecondaryTeacher, RoleTutor:
		return KindSecondTeacher, true
	case RoleAuxiliary:
		return KindAuxiliary, true
	case RoleAdministrative:
		return KindAdministrative, true
	}
	return "", false
}

// Population is the attendance population a mark belongs to. Each population
// is backed by its own instance group.
type Population string

const (
	PopulationStaff     Population = "staff"
	PopulationPrimary   Population = "primary"
	PopulationSecondary Population = "secondary"
)

// Group returns the instance group backing the population.
func (p Population) Group() store.Group {
	switch p {
	case PopulationPrimary:
		return store.GroupPrimary
	case PopulationSecondary:
		return store.GroupSecondary
	default:
		return store.GroupStaff
	}
}

// Valid reports whether p is a known population.
func (p Population) Valid() bool {
	switch p {
	case PopulationStaff, PopulationPrimary, PopulationSecondary:
		return true
	}
	return false
}

// CanMarkOwn reports whether the role may register its own staff attendance.
// Every staff role may; guardians may not.
func CanMarkOwn(role Role) error {
	if _, ok := role.StaffKind(); ok {
		return nil
	}
	return store.WrapError(store.ErrForbidden,
		fmt.Sprintf("role %q may not register own attendance", role), nil)
}

// CanMarkStaff reports whether the role may register another staff member's
// attendance. Only directors may, and only within the staff population.
func CanMarkStaff(role Role, kind ActorKind) error {
	if role != RoleDirector {
		return store.WrapError(store.ErrForbidden,
			fmt.Sprintf("role %q may not register staff attendance for others", role), nil)
	}
	if !kind.IsStaff() {
		return store.WrapError(store.ErrForbidden, "directors may only mark staff, never students", nil)
	}
	return nil
}

// CanMarkStudent reports whether the role may register a student mark in the
// given population. Primary teachers are restricted to the primary
// population, auxiliaries to the secondary population; no other role may
// mark students.
func CanMarkStudent(role Role, population Population) error {
	switch role {
	case RolePrimaryTeacher:
		if population != PopulationPrimary {
			return store.WrapError(store.ErrForbidden,
				"primary teachers may only mark primary students", nil)
		}
		return nil
	case RoleAuxiliary:
		if population != PopulationSecondary {
			return store.WrapError(store.ErrForbidden,
				"auxiliaries may only mark secondary students", nil)
		}
		return nil
	default:
		return store.WrapError(store.ErrForbidden,
			fmt.Sprintf("role %q may not register student attendance", role), nil)
	}
}

// CanDiscard reports whether the role may discard an existing record.
func CanDiscard(role Role) error {
	if role != RoleDirector {
		return store.WrapError(store.ErrForbidden, "only directors may discard records", nil)
	}
	return nil
}

// CanOpenWindow reports whether the role may open the attendance window for
// a population. Directors may open any window; auxiliaries the secondary
// window; primary teachers the primary window.
func CanOpenWindow(role Role, population Population) error {
	switch role {
	case RoleDirector:
		return nil
	case RoleAuxiliary:
		if population == PopulationSecondary {
			return nil
		}
	case RolePrimaryTeacher:
		if population == PopulationPrimary {
			return nil
		}
	}
	return store.WrapError(store.ErrForbidden,
		fmt.Sprintf("role %q may not open the %s attendance window", role, population), nil)
}
