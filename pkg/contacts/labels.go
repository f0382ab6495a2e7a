package contacts

import "strings"

// Phone type codes as defined by the platform contact contract.
const (
	PhoneTypeCustom      = 0
	PhoneTypeHome        = 1
	PhoneTypeMobile      = 2
	PhoneTypeWork        = 3
	PhoneTypeFaxWork     = 4
	PhoneTypeFaxHome     = 5
	PhoneTypePager       = 6
	PhoneTypeOther       = 7
	PhoneTypeCompanyMain = 10
	PhoneTypeMain        = 12
)

// Email type codes.
const (
	EmailTypeCustom = 0
	EmailTypeHome   = 1
	EmailTypeWork   = 2
	EmailTypeOther  = 3
	EmailTypeMobile = 4
)

// Postal address type codes.
const (
	PostalTypeCustom = 0
	PostalTypeHome   = 1
	PostalTypeWork   = 2
	PostalTypeOther  = 3
)

// Event and organization type codes used by the reader and writer.
const (
	EventTypeBirthday    = 3
	OrganizationTypeWork = 1
	defaultLabel         = "other"
)

type labelTable struct {
	custom int
	byType map[int]string
	byName map[string]int
}

func newLabelTable(custom int, labels map[int]string) labelTable {
	byName := make(map[string]int, len(labels))
	for code, name := range labels {
		byName[name] = code
	}
	return labelTable{custom: custom, byType: labels, byName: byName}
}

// label resolves a stored type code. The custom code defers to the stored
// custom label; unknown codes read as "other".
func (lt labelTable) label(code int, customLabel *string) string {
	if code == lt.custom {
		if customLabel == nil {
			return ""
		}
		return *customLabel
	}
	if name, ok := lt.byType[code]; ok {
		return name
	}
	return defaultLabel
}

// code maps a caller label to a type code. Labels outside the table are
// custom, and the caller must store the label text alongside.
func (lt labelTable) code(label string) (int, bool) {
	if code, ok := lt.byName[strings.ToLower(strings.TrimSpace(label))]; ok {
		return code, false
	}
	return lt.custom, true
}

var (
	phoneLabels = newLabelTable(PhoneTypeCustom, map[int]string{
		PhoneTypeHome:        "home",
		PhoneTypeMobile:      "mobile",
		PhoneTypeWork:        "work",
		PhoneTypeFaxWork:     "fax work",
		PhoneTypeFaxHome:     "fax home",
		PhoneTypePager:       "pager",
		PhoneTypeOther:       "other",
		PhoneTypeCompanyMain: "company",
		PhoneTypeMain:        "main",
	})
	emailLabels = newLabelTable(EmailTypeCustom, map[int]string{
		EmailTypeHome:   "home",
		EmailTypeWork:   "work",
		EmailTypeOther:  "other",
		EmailTypeMobile: "mobile",
	})
	postalLabels = newLabelTable(PostalTypeCustom, map[int]string{
		PostalTypeHome:  "home",
		PostalTypeWork:  "work",
		PostalTypeOther: "other",
	})
)

// PhoneLabel returns the label for a phone type code.
func PhoneLabel(code int, customLabel *string) string { return phoneLabels.label(code, customLabel) }

// PhoneType returns the type code for a phone label and whether it is custom.
func PhoneType(label string) (int, bool) { return phoneLabels.code(label) }

// EmailLabel returns the label for an email type code.
func EmailLabel(code int, customLabel *string) string { return emailLabels.label(code, customLabel) }

// EmailType returns the type code for an email label and whether it is custom.
func EmailType(label string) (int, bool) { return emailLabels.code(label) }

// PostalLabel returns the label for a postal address type code.
func PostalLabel(code int, customLabel *string) string { return postalLabels.label(code, customLabel) }

// PostalType returns the type code for a postal label and whether it is custom.
func PostalType(label string) (int, bool) { return postalLabels.code(label) }
