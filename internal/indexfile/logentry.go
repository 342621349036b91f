package indexfile

import "github.com/google/uuid"

// LogSeverity classifies one index log emission.
type LogSeverity int

const (
	SeverityInfo LogSeverity = iota
	SeverityWarning
	SeverityError
)

// LogStructureKind distinguishes the three phases of a partition's
// lifetime in the index log.
type LogStructureKind int

const (
	StructureBegin LogStructureKind = iota
	StructureReport
	StructureEnd
)

// LogEntry is one emission to the index log callback. TaskID is stable
// across an entire partition's lifetime.
type LogEntry struct {
	Message   string
	Severity  LogSeverity
	Structure LogStructureKind
	TaskID    uuid.UUID
	Title     string // only set on StructureBegin
}

// LogFunc receives index log emissions; nil is a valid "discard" logger.
type LogFunc func(LogEntry)

func (f LogFunc) emit(entry LogEntry) {
	if f != nil {
		f(entry)
	}
}
