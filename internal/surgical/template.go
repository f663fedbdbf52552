package surgical

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Template tokens recognized in alert messages.
const (
	TokenCaseID            = "[ID de Caso]"
	TokenPatientName       = "[Paciente]"
	TokenInsuranceProvider = "[Obra Social]"
	TokenDayCount          = "[Días]"
)

var knownTokens = map[string]struct{}{
	TokenCaseID:            {},
	TokenPatientName:       {},
	TokenInsuranceProvider: {},
	TokenDayCount:          {},
}

var bracketToken = regexp.MustCompile(`\[[^\[\]]*\]`)

type TemplateValues struct {
	CaseID            string
	PatientName       string
	InsuranceProvider string
	DayCount          int
}

// RenderTemplate substitutes every occurrence of the recognized tokens.
// Any other bracketed text is left untouched.
func RenderTemplate(tmpl string, v TemplateValues) string {
	r := strings.NewReplacer(
		TokenCaseID, v.CaseID,
		TokenPatientName, v.PatientName,
		TokenInsuranceProvider, v.InsuranceProvider,
		TokenDayCount, strconv.Itoa(v.DayCount),
	)
	return r.Replace(tmpl)
}

// ValidateTemplate returns ErrUnknownToken for the first bracketed token that
// is not recognized.
func ValidateTemplate(tmpl string) error {
	for _, tok := range bracketToken.FindAllString(tmpl, -1) {
		if _, ok := knownTokens[tok]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownToken, tok)
		}
	}
	return nil
}
