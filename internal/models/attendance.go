package models

import "strings"

// AttendanceStatus represents the status recorded for a student on a day.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// ParseAttendanceStatus normalises case and whitespace before validating.
func ParseAttendanceStatus(raw string) (AttendanceStatus, bool) {
	status := AttendanceStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// AttendanceStatuses lists every supported status in display order.
func AttendanceStatuses() []AttendanceStatus {
	return []AttendanceStatus{AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusExcused, AttendanceStatusAbsent}
}
