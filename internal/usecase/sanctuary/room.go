package sanctuary

import (
	"strings"

	"conductor/internal/domain"
)

const (
	roomTitlePrefix = "Room:"

	sectionPurpose     = "Purpose"
	sectionAtmosphere  = "Atmosphere"
	sectionModulation  = "Modulation"
	sectionConstraints = "Constraints"
)

var roomSections = map[string]bool{
	strings.ToLower(sectionPurpose):     true,
	strings.ToLower(sectionAtmosphere):  true,
	strings.ToLower(sectionModulation):  true,
	strings.ToLower(sectionConstraints): true,
}

// ParseRoom parses a room fragment. The room's name comes from its
// "# Room: <name>" title, not from the fragment name.
func ParseRoom(name, text string) (*domain.Room, error) {
	doc := scan(text)

	title, ok := strings.CutPrefix(doc.title, roomTitlePrefix)
	title = strings.TrimSpace(title)
	if !ok || title == "" {
		return nil, &domain.FragmentError{Kind: domain.FragmentRoom, Name: name, Err: domain.ErrMissingField, Detail: "Room"}
	}
	purpose := doc.section(sectionPurpose).text()
	if purpose == "" {
		return nil, &domain.FragmentError{Kind: domain.FragmentRoom, Name: name, Err: domain.ErrMissingSection, Detail: sectionPurpose}
	}

	r := &domain.Room{
		Name:        title,
		Purpose:     purpose,
		Atmosphere:  doc.section(sectionAtmosphere).pairs(),
		Modulation:  doc.section(sectionModulation).pairs(),
		Constraints: doc.section(sectionConstraints).bullets(),
		Metadata:    map[string]string{},
	}
	for _, f := range doc.header {
		r.Metadata[metadataKey(f.key)] = f.value
	}
	for _, s := range doc.sections {
		if !roomSections[strings.ToLower(s.name)] {
			r.Metadata[metadataKey(s.name)] = s.text()
		}
	}
	return r, nil
}
