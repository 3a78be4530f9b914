// Package attendance implements the attendance-registration domain: key
// scheme, mark values, expiration policy, permission matrix, and the
// registration and window-flag services.
package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/school-platform/attendance-service/internal/store"
)

const (
	keyDelimiter = ":"
	civilDateFmt = "2006-01-02"
)

// Mode is the registration direction of a mark.
type Mode string

const (
	// ModeEntry marks an arrival. The wire literal is kept bit-exact with
	// the persisted key format.
	ModeEntry Mode = "Entrada"
	// ModeExit marks a departure.
	ModeExit Mode = "Salida"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeEntry || m == ModeExit }

// ActorKind identifies the kind of person a mark belongs to.
type ActorKind string

const (
	KindDirector       ActorKind = "director"
	KindPrimaryTeacher ActorKind = "docente_primaria"
	KindSecondTeacher  ActorKind = "docente_secundaria"
	KindAuxiliary      ActorKind = "auxiliar"
	KindAdministrative ActorKind = "administrativo"
	KindStudent        ActorKind = "estudiante"
)

// Valid reports whether k is a known actor kind.
func (k ActorKind) Valid() bool {
	switch k {
	case KindDirector, KindPrimaryTeacher, KindSecondTeacher, KindAuxiliary, KindAdministrative, KindStudent:
		return true
	}
	return false
}

// IsStaff reports whether the kind belongs to the staff population.
func (k ActorKind) IsStaff() bool { return k.Valid() && k != KindStudent }

// Key is the parsed form of one attendance record key.
type Key struct {
	Date      time.Time // civil date, zero clock
	Mode      Mode
	ActorKind ActorKind
	ActorID   string

	// Student-only fields; empty for staff keys.
	Level   string
	Grade   string
	Section string
}

// IsStudent reports whether the key addresses a student record.
func (k Key) IsStudent() bool { return k.ActorKind == KindStudent }

// BuildStaffKey constructs the composite key of one staff attendance mark:
// YYYY-MM-DD:<Entrada|Salida>:<actorKind>:<actorId>.
func BuildStaffKey(date time.Time, mode Mode, kind ActorKind, actorID string) (string, error) {
	if !mode.Valid() {
		return "", store.WrapError(store.ErrInvalidKey, "unknown registration mode", nil)
	}
	if !kind.IsStaff() {
		return "", store.WrapError(store.ErrInvalidKey, "actor kind is not a staff kind", nil)
	}
	if err := validateComponent("actor id", actorID); err != nil {
		return "", err
	}
	return strings.Join([]string{
		date.Format(civilDateFmt), string(mode), string(kind), actorID,
	}, keyDelimiter), nil
}

// BuildStudentKey constructs the composite key of one student attendance
// mark: YYYY-MM-DD:<Entrada|Salida>:estudiante:<level>:<grade>:<section>:<studentId>.
func BuildStudentKey(date time.Time, mode Mode, level, grade, section, studentID string) (string, error) {
	if !mode.Valid() {
		return "", store.WrapError(store.ErrInvalidKey, "unknown registration mode", nil)
	}
	for name, component := range map[string]string{
		"level": level, "grade": grade, "section": section, "student id": studentID,
	} {
		if err := validateComponent(name, component); err != nil {
			return "", err
		}
	}
	return strings.Join([]string{
		date.Format(civilDateFmt), string(mode), string(KindStudent), level, grade, section, studentID,
	}, keyDelimiter), nil
}

// ParseKey parses a composite attendance key back into its fields. It
// round-trips with BuildStaffKey and BuildStudentKey for all valid inputs.
func ParseKey(key string) (Key, error) {
	parts := strings.Split(key, keyDelimiter)

	switch len(parts) {
	case 4, 7:
	default:
		return Key{}, store.WrapError(store.ErrInvalidKey,
			fmt.Sprintf("key has %d segments, want 4 or 7", len(parts)), nil)
	}

	date, err := time.Parse(civilDateFmt, parts[0])
	if err != nil {
		return Key{}, store.WrapError(store.ErrInvalidKey, "key has an invalid civil date", err)
	}
	mode := Mode(parts[1])
	if !mode.Valid() {
		return Key{}, store.WrapError(store.ErrInvalidKey, "key has an unknown registration mode", nil)
	}
	kind := ActorKind(parts[2])
	if !kind.Valid() {
		return Key{}, store.WrapError(store.ErrInvalidKey, "key has an unknown actor kind", nil)
	}

	if len(parts) == 4 {
		if !kind.IsStaff() {
			return Key{}, store.WrapError(store.ErrInvalidKey, "staff key carries a student actor kind", nil)
		}
		if parts[3] == "" {
			return Key{}, store.WrapError(store.ErrInvalidKey, "key has an empty actor id", nil)
		}
		return Key{Date: date, Mode: mode, ActorKind: kind, ActorID: parts[3]}, nil
	}

	if kind != KindStudent {
		return Key{}, store.WrapError(store.ErrInvalidKey, "student key carries a staff actor kind", nil)
	}
	for _, component := range parts[3:] {
		if component == "" {
			return Key{}, store.WrapError(store.ErrInvalidKey, "key has an empty segment", nil)
		}
	}
	return Key{
		Date:      date,
		Mode:      mode,
		ActorKind: kind,
		Level:     parts[3],
		Grade:     parts[4],
		Section:   parts[5],
		ActorID:   parts[6],
	}, nil
}

// validateComponent rejects empty components and components carrying the key
// delimiter, which would make the key ambiguous to parse.
func validateComponent(name, value string) error {
	if value == "" {
		return store.WrapError(store.ErrInvalidKey, fmt.Sprintf("%s is empty", name), nil)
	}
	if strings.Contains(value, keyDelimiter) {
		return store.WrapError(store.ErrInvalidKey, fmt.Sprintf("%s contains the key delimiter", name), nil)
	}
	return nil
}
