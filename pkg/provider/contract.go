package provider

import "fmt"

// Mime types discriminating the kind of a data row.
const (
	MimeName         = "vnd.android.cursor.item/name"
	MimePhone        = "vnd.android.cursor.item/phone_v2"
	MimeEmail        = "vnd.android.cursor.item/email_v2"
	MimeOrganization = "vnd.android.cursor.item/organization"
	MimePostal       = "vnd.android.cursor.item/postal-address_v2"
	MimeNote         = "vnd.android.cursor.item/note"
	MimeEvent        = "vnd.android.cursor.item/contact_event"
	MimePhoto        = "vnd.android.cursor.item/photo"
)

// Tables.
const (
	TableRawContacts = "raw_contacts"
	TableData        = "data"
)

// Fixed columns.
const (
	ColID             = "_id"
	ColRawContactID   = "raw_contact_id"
	ColMimeType       = "mimetype"
	ColIsSuperPrimary = "is_super_primary"
	ColDisplayName    = "display_name"
	ColAccountType    = "account_type"
	ColAccountName    = "account_name"
	ColPhoto          = "data15"
)

// Column is one of the generic text columns data1..data10 of a data row.
// Its meaning depends on the row's mime type.
type Column int

// Generic data columns.
const (
	Data1 Column = iota + 1
	Data2
	Data3
	Data4
	Data5
	Data6
	Data7
	Data8
	Data9
	Data10
)

// NumDataColumns is the number of generic text columns.
const NumDataColumns = 10

// Name returns the SQL column name.
func (c Column) Name() string {
	return fmt.Sprintf("data%d", int(c))
}

func (c Column) valid() bool {
	return c >= Data1 && c <= Data10
}

// Structured name columns.
const (
	NameDisplayName = Data1
	NameGiven       = Data2
	NameFamily      = Data3
	NamePrefix      = Data4
	NameMiddle      = Data5
	NameSuffix      = Data6
)

// Phone columns.
const (
	PhoneNumber     = Data1
	PhoneType       = Data2
	PhoneLabel      = Data3
	PhoneNormalized = Data4
)

// Email columns.
const (
	EmailAddress = Data1
	EmailType    = Data2
	EmailLabel   = Data3
)

// Organization columns.
const (
	OrgCompany = Data1
	OrgType    = Data2
	OrgLabel   = Data3
	OrgTitle   = Data4
)

// Postal address columns.
const (
	PostalFormatted    = Data1
	PostalType         = Data2
	PostalLabel        = Data3
	PostalStreet       = Data4
	PostalPOBox        = Data5
	PostalNeighborhood = Data6
	PostalCity         = Data7
	PostalRegion       = Data8
	PostalPostcode     = Data9
	PostalCountry      = Data10
)

// Note columns.
const (
	NoteText = Data1
)

// Event columns.
const (
	EventStartDate = Data1
	EventType      = Data2
	EventLabel     = Data3
)

var writableColumns = map[string]map[string]bool{
	TableRawContacts: {
		ColAccountType: true,
		ColAccountName: true,
	},
	TableData: func() map[string]bool {
		cols := map[string]bool{
			ColRawContactID:   true,
			ColMimeType:       true,
			ColIsSuperPrimary: true,
			ColPhoto:          true,
		}
		for c := Data1; c <= Data10; c++ {
			cols[c.Name()] = true
		}
		return cols
	}(),
}
