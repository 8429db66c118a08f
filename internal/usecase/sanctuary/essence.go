package sanctuary

import (
	"strings"

	"conductor/internal/domain"
)

// Essence section and header names.
const (
	fieldTag    = "Tag"
	fieldStatus = "Status"

	sectionCoreTone           = "Core Tone"
	sectionBehavioralPillars  = "Behavioral Pillars"
	sectionDriftBoundaries    = "Drift Boundaries"
	sectionModulationFeatures = "Modulation Features"
	sectionNotes              = "Notes"
)

// UndefinedStatus is used when an essence has no Status header.
const UndefinedStatus = "undefined"

var essenceSections = map[string]bool{
	strings.ToLower(sectionCoreTone):           true,
	strings.ToLower(sectionBehavioralPillars):  true,
	strings.ToLower(sectionDriftBoundaries):    true,
	strings.ToLower(sectionModulationFeatures): true,
	strings.ToLower(sectionNotes):              true,
}

// ParseEssence parses an essence fragment. name is only used for errors.
func ParseEssence(name, text string) (*domain.Essence, error) {
	doc := scan(text)

	tag, _ := doc.headerValue(fieldTag)
	if tag == "" {
		return nil, &domain.FragmentError{Kind: domain.FragmentEssence, Name: name, Err: domain.ErrMissingField, Detail: fieldTag}
	}
	coreTone := doc.section(sectionCoreTone).text()
	if coreTone == "" {
		return nil, &domain.FragmentError{Kind: domain.FragmentEssence, Name: name, Err: domain.ErrMissingSection, Detail: sectionCoreTone}
	}

	status, _ := doc.headerValue(fieldStatus)
	if status == "" {
		status = UndefinedStatus
	}

	e := &domain.Essence{
		Tag:                tag,
		Status:             status,
		CoreTone:           coreTone,
		BehavioralPillars:  doc.section(sectionBehavioralPillars).bullets(),
		DriftBoundaries:    doc.section(sectionDriftBoundaries).bullets(),
		ModulationFeatures: doc.section(sectionModulationFeatures).bullets(),
		Notes:              doc.section(sectionNotes).text(),
		Metadata:           map[string]string{},
	}

	for _, f := range doc.header {
		if strings.EqualFold(f.key, fieldTag) || strings.EqualFold(f.key, fieldStatus) {
			continue
		}
		e.Metadata[metadataKey(f.key)] = f.value
	}
	for _, s := range doc.sections {
		if !essenceSections[strings.ToLower(s.name)] {
			e.Metadata[metadataKey(s.name)] = s.text()
		}
	}
	return e, nil
}

// ValidateEssence returns advisory warnings for an essence that parsed but
// is thin. An empty result means nothing to report.
func ValidateEssence(e *domain.Essence) []string {
	if e == nil {
		return []string{"essence is nil"}
	}
	var warnings []string
	if e.Tag == "" {
		warnings = append(warnings, "missing required field: Tag")
	}
	if e.CoreTone == "" {
		warnings = append(warnings, "missing required section: Core Tone")
	}
	if len(e.BehavioralPillars) == 0 {
		warnings = append(warnings, "behavioral pillars should not be empty")
	}
	if len(e.DriftBoundaries) == 0 {
		warnings = append(warnings, "drift boundaries should not be empty")
	}
	return warnings
}
