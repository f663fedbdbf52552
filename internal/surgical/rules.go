package surgical

import (
	"fmt"
	"time"
)

// FolderComplete reports whether every checklist document is received or
// not applicable.
func FolderComplete(c Case) bool {
	for _, d := range c.Documents() {
		if !d.Satisfied() {
			return false
		}
	}
	return true
}

// ApplyFolderReadiness recomputes c.FolderStatus from the document checklist.
// A notice is returned only when the folder becomes ready; reverting to
// incomplete is silent.
func ApplyFolderReadiness(c *Case, now time.Time) (Notice, bool) {
	complete := FolderComplete(*c)

	switch {
	case complete && c.FolderStatus == FolderIncomplete:
		c.FolderStatus = FolderReadyToSubmit
		return Notice{
			Message:  fmt.Sprintf("Folder for %s is ready to submit!", c.PatientName),
			Severity: SeverityInfo,
			Kind:     KindFolderReady,
			CaseID:   c.ID,
			At:       now,
		}, true
	case !complete && c.FolderStatus == FolderReadyToSubmit:
		c.FolderStatus = FolderIncomplete
	}

	return Notice{}, false
}

// ApplySubmissionTransition stamps SubmittedDate the first time a case moves
// from not submitted to submitted and in review.
func ApplySubmissionTransition(prev Case, c *Case, now time.Time) (Notice, bool) {
	if prev.FollowUpStatus != FollowUpNotSubmitted ||
		c.FollowUpStatus != FollowUpSubmittedInReview ||
		c.SubmittedDate != nil {
		return Notice{}, false
	}

	stamped := now
	c.SubmittedDate = &stamped

	return Notice{
		Message:  fmt.Sprintf("Case for %s has been marked as submitted.", c.PatientName),
		Severity: SeverityInfo,
		Kind:     KindCaseSubmitted,
		CaseID:   c.ID,
		At:       now,
	}, true
}
