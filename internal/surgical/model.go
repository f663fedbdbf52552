package surgical

import (
	"time"
)

type DocumentStatus string

const (
	DocPending       DocumentStatus = "pending"
	DocReceived      DocumentStatus = "received"
	DocNotApplicable DocumentStatus = "not_applicable"
)

func (d DocumentStatus) IsValid() bool {
	switch d {
	case DocPending, DocReceived, DocNotApplicable:
		return true
	}
	return false
}

// Satisfied reports whether the document no longer blocks the folder.
func (d DocumentStatus) Satisfied() bool {
	return d == DocReceived || d == DocNotApplicable
}

type FolderStatus string

const (
	FolderIncomplete    FolderStatus = "incomplete"
	FolderReadyToSubmit FolderStatus = "ready_to_submit"
)

func (f FolderStatus) IsValid() bool {
	return f == FolderIncomplete || f == FolderReadyToSubmit
}

type FollowUpStatus string

const (
	FollowUpNotSubmitted      FollowUpStatus = "not_submitted"
	FollowUpSubmittedInReview FollowUpStatus = "submitted_in_review"
	FollowUpAuthorized        FollowUpStatus = "authorized"
	FollowUpRejected          FollowUpStatus = "rejected"
	FollowUpJudicialized      FollowUpStatus = "judicialized"
	FollowUpSurgeryScheduled  FollowUpStatus = "surgery_scheduled"
	FollowUpOperated          FollowUpStatus = "operated"
)

func (f FollowUpStatus) IsValid() bool {
	switch f {
	case FollowUpNotSubmitted, FollowUpSubmittedInReview, FollowUpAuthorized, FollowUpRejected,
		FollowUpJudicialized, FollowUpSurgeryScheduled, FollowUpOperated:
		return true
	}
	return false
}

// Case is one surgical pre-authorization record.
type Case struct {
	ID                string `json:"id"`
	PatientName       string `json:"patientName"`
	WhatsAppNumber    string `json:"whatsappNumber"`
	InsuranceProvider string `json:"insuranceProvider"`

	// Assigned professionals, empty when unassigned.
	Surgeon      string `json:"surgeon"`
	Nutritionist string `json:"nutritionist"`
	Psychologist string `json:"psychologist"`

	Consent            DocumentStatus `json:"consent"`
	Budget             DocumentStatus `json:"budget"`
	SurgeonReport      DocumentStatus `json:"surgeonReport"`
	NutritionistReport DocumentStatus `json:"nutritionistReport"`
	PsychologistReport DocumentStatus `json:"psychologistReport"`

	FolderStatus   FolderStatus   `json:"folderStatus"`
	FollowUpStatus FollowUpStatus `json:"followUpStatus"`

	RequestDate    time.Time  `json:"requestDate"`
	SubmittedDate  *time.Time `json:"submittedDate"`
	AuthorizedDate *time.Time `json:"authorizedDate"`
	OperatedDate   *time.Time `json:"operatedDate"`
	LastAlertSent  *time.Time `json:"lastAlertSent"`

	DriveFolderLink string `json:"driveFolderLink"`
	Notes           string `json:"notes"`
}

// Documents returns the five checklist fields in a fixed order.
func (c Case) Documents() [5]DocumentStatus {
	return [5]DocumentStatus{c.Consent, c.Budget, c.SurgeonReport, c.NutritionistReport, c.PsychologistReport}
}

func (c Case) validate() error {
	for _, d := range c.Documents() {
		if !d.IsValid() {
			return invalidCase("unknown document status %q", d)
		}
	}
	if !c.FolderStatus.IsValid() {
		return invalidCase("unknown folder status %q", c.FolderStatus)
	}
	if !c.FollowUpStatus.IsValid() {
		return invalidCase("unknown follow-up status %q", c.FollowUpStatus)
	}
	return nil
}

// NewCaseInput carries the user supplied fields of a new case. Everything
// else starts at its beginning-of-workflow value.
type NewCaseInput struct {
	PatientName       string `json:"patientName"`
	WhatsAppNumber    string `json:"whatsappNumber"`
	InsuranceProvider string `json:"insuranceProvider"`
	Surgeon           string `json:"surgeon"`
	Nutritionist      string `json:"nutritionist"`
	Psychologist      string `json:"psychologist"`
}

type CaseFilter struct {
	InsuranceProvider string
}

func (f CaseFilter) match(c Case) bool {
	return f.InsuranceProvider == "" || c.InsuranceProvider == f.InsuranceProvider
}
