package surgical

import (
	"context"
	"time"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type NoticeKind string

const (
	KindCaseCreated    NoticeKind = "case_created"
	KindFolderReady    NoticeKind = "folder_ready"
	KindCaseSubmitted  NoticeKind = "case_submitted"
	KindInternalAlert  NoticeKind = "internal_alert"
	KindPatientMessage NoticeKind = "patient_message"
	KindSummary        NoticeKind = "summary"
)

// Notice is a transient user facing message.
type Notice struct {
	Message  string     `json:"message"`
	Severity Severity   `json:"severity"`
	Kind     NoticeKind `json:"kind"`
	CaseID   string     `json:"caseId,omitempty"`
	At       time.Time  `json:"at"`
}

// NoticeSink receives notices. Delivery is fire-and-forget: implementations
// handle their own failures.
type NoticeSink interface {
	Notify(ctx context.Context, n Notice)
}
