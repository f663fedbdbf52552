package summary

import (
	"fmt"
	"time"

	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

var documentLabels = map[surgical.DocumentStatus]string{
	surgical.DocPending:       "Pendiente",
	surgical.DocReceived:      "Recibido",
	surgical.DocNotApplicable: "No Aplica",
}

var folderLabels = map[surgical.FolderStatus]string{
	surgical.FolderIncomplete:    "Incompleta",
	surgical.FolderReadyToSubmit: "Lista para Presentar",
}

var followUpLabels = map[surgical.FollowUpStatus]string{
	surgical.FollowUpNotSubmitted:      "No Presentada",
	surgical.FollowUpSubmittedInReview: "Presentada y en Revisión",
	surgical.FollowUpAuthorized:        "Autorizada",
	surgical.FollowUpRejected:          "Rechazada",
	surgical.FollowUpJudicialized:      "Judicializada",
	surgical.FollowUpSurgeryScheduled:  "Cirugía Programada",
	surgical.FollowUpOperated:          "Operado",
}

// BuildPrompt renders the case into the instruction sent to the model.
func BuildPrompt(c surgical.Case) string {
	notes := c.Notes
	if notes == "" {
		notes = "None"
	}

	return fmt.Sprintf(`Analyze the following surgical case data and provide a concise summary and a suggested next action.
The response should be in Spanish.

Case Data:
- Patient: %s
- Insurance: %s
- Folder Status: %s
- Follow-up Status: %s
- Key Dates:
    - Request: %s
    - Submitted: %s
- Document Checklist:
    - Consent: %s
    - Budget: %s
    - Surgeon Report: %s
    - Nutritionist Report: %s
    - Psychologist Report: %s
- Current Notes: %s

Based on this, what is the current situation and the most logical next step for the case manager?
Format the output clearly with "Resumen del Caso:" and "Próxima Acción Sugerida:".`,
		c.PatientName,
		c.InsuranceProvider,
		label(folderLabels, c.FolderStatus),
		label(followUpLabels, c.FollowUpStatus),
		formatDate(&c.RequestDate),
		formatDate(c.SubmittedDate),
		label(documentLabels, c.Consent),
		label(documentLabels, c.Budget),
		label(documentLabels, c.SurgeonReport),
		label(documentLabels, c.NutritionistReport),
		label(documentLabels, c.PsychologistReport),
		notes,
	)
}

func label[K ~string](labels map[K]string, k K) string {
	if l, ok := labels[k]; ok {
		return l
	}
	return string(k)
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return t.Format("02/01/2006")
}
