package surgical

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Settings is the single, user editable configuration record.
type Settings struct {
	WhatsAppAPIToken     string `json:"whatsAppApiToken"`
	WhatsAppAccountID    string `json:"whatsAppAccountId"`
	WhatsAppSenderNumber string `json:"whatsAppSenderNumber"`

	AlertDaysPostSubmission int    `json:"alertDaysPostSubmission"`
	AlertMessageInternal    string `json:"alertMessageInternal"`
	AlertMessagePatient     string `json:"alertMessagePatient"`

	InsuranceProviders []string `json:"insuranceProviders"`
	Surgeons           []string `json:"surgeons"`
	Nutritionists      []string `json:"nutritionists"`
	Psychologists      []string `json:"psychologists"`
}

func DefaultSettings() Settings {
	return Settings{
		WhatsAppAPIToken:        "simulated_token",
		WhatsAppAccountID:       "simulated_id",
		WhatsAppSenderNumber:    "+15550001234",
		AlertDaysPostSubmission: 30,
		AlertMessageInternal:    "ALERTA: El caso [ID de Caso] de [Paciente] para [Obra Social] ha superado los [Días] días en revisión.",
		AlertMessagePatient:     "Hola [Paciente], notamos que tu carpeta con [Obra Social] lleva más de [Días] días en revisión. Estamos gestionándolo y te informaremos cualquier novedad.",
		InsuranceProviders:      []string{"OSDE", "Swiss Medical", "Galeno", "Medifé"},
		Surgeons:                []string{"Dr. Favaloro", "Dra. Moreno", "Dr. Pérez"},
		Nutritionists:           []string{"Lic. Ramirez", "Lic. Gonzalez"},
		Psychologists:           []string{"Lic. Gomez", "Lic. Fernandez"},
	}
}

// MergeSettings decodes a stored settings record over the defaults, so fields
// missing from older records keep their default values. Empty input yields
// the defaults.
func MergeSettings(raw []byte) (Settings, error) {
	s := DefaultSettings()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.AlertDaysPostSubmission < 1 {
		return fmt.Errorf("%w: alert days must be at least 1", ErrInvalidSettings)
	}
	if err := ValidateTemplate(s.AlertMessageInternal); err != nil {
		return fmt.Errorf("internal message: %w", err)
	}
	if err := ValidateTemplate(s.AlertMessagePatient); err != nil {
		return fmt.Errorf("patient message: %w", err)
	}
	return nil
}

// ReferenceList names one of the selectable lists in Settings.
type ReferenceList string

const (
	ListInsuranceProviders ReferenceList = "insuranceProviders"
	ListSurgeons           ReferenceList = "surgeons"
	ListNutritionists      ReferenceList = "nutritionists"
	ListPsychologists      ReferenceList = "psychologists"
)

func (s *Settings) list(name ReferenceList) (*[]string, error) {
	switch name {
	case ListInsuranceProviders:
		return &s.InsuranceProviders, nil
	case ListSurgeons:
		return &s.Surgeons, nil
	case ListNutritionists:
		return &s.Nutritionists, nil
	case ListPsychologists:
		return &s.Psychologists, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownList, name)
}

// AddReference appends item to the named list. Items are trimmed and must be
// unique within the list.
func (s *Settings) AddReference(name ReferenceList, item string) error {
	l, err := s.list(name)
	if err != nil {
		return err
	}
	item = strings.TrimSpace(item)
	if item == "" {
		return ErrEmptyItem
	}
	if slices.Contains(*l, item) {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, item)
	}
	*l = append(slices.Clone(*l), item)
	return nil
}

func (s *Settings) RemoveReference(name ReferenceList, item string) error {
	l, err := s.list(name)
	if err != nil {
		return err
	}
	idx := slices.Index(*l, item)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, item)
	}
	*l = slices.Delete(slices.Clone(*l), idx, idx+1)
	return nil
}

func (s Settings) clone() Settings {
	s.InsuranceProviders = slices.Clone(s.InsuranceProviders)
	s.Surgeons = slices.Clone(s.Surgeons)
	s.Nutritionists = slices.Clone(s.Nutritionists)
	s.Psychologists = slices.Clone(s.Psychologists)
	return s
}
