package surgical

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// SweepResult is the outcome of one alert sweep. Cases is the new snapshot in
// the same order as the input; Dirty[i] is true when Cases[i] was alerted.
type SweepResult struct {
	Cases   []Case
	Dirty   []bool
	Notices []Notice
}

// Changed reports whether any record was alerted in this sweep.
func (r SweepResult) Changed() bool {
	for _, d := range r.Dirty {
		if d {
			return true
		}
	}
	return false
}

// Overdue reports whether a submitted case has been in review longer than
// thresholdDays at now.
func Overdue(c Case, thresholdDays int, now time.Time) bool {
	if c.FollowUpStatus != FollowUpSubmittedInReview || c.SubmittedDate == nil {
		return false
	}
	elapsed := now.Sub(*c.SubmittedDate).Hours() / 24
	return elapsed > float64(thresholdDays)
}

// alertDue applies the cooldown: an overdue case is alerted again only once
// a full threshold window has passed since the previous alert.
func alertDue(c Case, thresholdDays int, now time.Time) bool {
	if !Overdue(c, thresholdDays, now) {
		return false
	}
	if c.LastAlertSent == nil {
		return true
	}
	boundary := now.Add(-time.Duration(thresholdDays) * day)
	return c.LastAlertSent.Before(boundary)
}

// Sweep evaluates every case independently against the settings at now. The
// input slice is not modified.
func Sweep(cases []Case, settings Settings, now time.Time) SweepResult {
	res := SweepResult{
		Cases: make([]Case, len(cases)),
		Dirty: make([]bool, len(cases)),
	}
	copy(res.Cases, cases)

	threshold := settings.AlertDaysPostSubmission
	for i := range res.Cases {
		c := &res.Cases[i]
		if !alertDue(*c, threshold, now) {
			continue
		}

		values := TemplateValues{
			CaseID:            c.ID,
			PatientName:       c.PatientName,
			InsuranceProvider: c.InsuranceProvider,
			DayCount:          threshold,
		}
		internal := RenderTemplate(settings.AlertMessageInternal, values)
		patient := RenderTemplate(settings.AlertMessagePatient, values)

		res.Notices = append(res.Notices,
			Notice{
				Message:  "INTERNAL ALERT: " + internal,
				Severity: SeverityWarning,
				Kind:     KindInternalAlert,
				CaseID:   c.ID,
				At:       now,
			},
			Notice{
				Message:  fmt.Sprintf("(simulated) WhatsApp to %s: %s", c.PatientName, patient),
				Severity: SeverityInfo,
				Kind:     KindPatientMessage,
				CaseID:   c.ID,
				At:       now,
			},
		)

		alerted := now
		c.LastAlertSent = &alerted
		res.Dirty[i] = true
	}

	return res
}
