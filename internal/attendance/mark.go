package attendance

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/school-platform/attendance-service/internal/store"
)

// Mark is the value stored for one attendance record. It is a tagged union:
// staff marks keep the absolute mark instant plus the schedule offset,
// student marks keep only the offset.
type Mark interface {
	// Offset returns the schedule offset in seconds, negative when early.
	Offset() int64
	encode() []string
}

// StaffMark is a staff attendance record value.
type StaffMark struct {
	// MarkedAt is the mark instant in epoch milliseconds.
	MarkedAt int64
	// OffsetSeconds is mark time minus expected scheduled time.
	OffsetSeconds int64
}

// Offset implements Mark.
func (m StaffMark) Offset() int64 { return m.OffsetSeconds }

func (m StaffMark) encode() []string {
	return []string{
		strconv.FormatInt(m.MarkedAt, 10),
		strconv.FormatInt(m.OffsetSeconds, 10),
	}
}

// StudentMark is a student attendance record value. No absolute timestamp is
// retained.
type StudentMark struct {
	OffsetSeconds int64
}

// Offset implements Mark.
func (m StudentMark) Offset() int64 { return m.OffsetSeconds }

func (m StudentMark) encode() []string {
	return []string{strconv.FormatInt(m.OffsetSeconds, 10)}
}

// tombstone is the value written on every instance before a discard delete,
// so a lagging replica cannot resurrect the record.
var tombstone = []byte("null")

// IsTombstone reports whether a stored value is a discard tombstone.
func IsTombstone(value []byte) bool {
	return bytes.Equal(bytes.TrimSpace(value), tombstone)
}

// EncodeMark serializes a mark as the wire-compatible JSON string array:
// ["<epochMillis>","<offset>"] for staff, ["<offset>"] for students.
func EncodeMark(m Mark) ([]byte, error) {
	if m == nil {
		return nil, store.WrapError(store.ErrInvalidValue, "mark is nil", nil)
	}
	return json.Marshal(m.encode())
}

// DecodeMark deserializes a stored mark value. The array arity is the union
// tag: two elements decode as a StaffMark, one as a StudentMark. Tombstones
// and any other shape are rejected.
func DecodeMark(value []byte) (Mark, error) {
	if IsTombstone(value) {
		return nil, store.WrapError(store.ErrInvalidValue, "value is a discard tombstone", nil)
	}

	var fields []string
	if err := json.Unmarshal(value, &fields); err != nil {
		return nil, store.WrapError(store.ErrInvalidValue, "stored value is not a string array", err)
	}

	switch len(fields) {
	case 2:
		markedAt, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, store.WrapError(store.ErrInvalidValue, "staff mark has an invalid timestamp", err)
		}
		offset, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, store.WrapError(store.ErrInvalidValue, "staff mark has an invalid offset", err)
		}
		return StaffMark{MarkedAt: markedAt, OffsetSeconds: offset}, nil
	case 1:
		offset, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, store.WrapError(store.ErrInvalidValue, "student mark has an invalid offset", err)
		}
		return StudentMark{OffsetSeconds: offset}, nil
	default:
		return nil, store.WrapError(store.ErrInvalidValue,
			"stored value has an unknown arity", nil)
	}
}
