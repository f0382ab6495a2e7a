package contacts

import (
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Item is a labeled phone number or email address.
type Item struct {
	Label string
	Value string
}

// PostalAddress is one structured address of a contact.
type PostalAddress struct {
	Label    string
	Street   string
	City     string
	Postcode string
	Region   string
	Country  string
}

// Contact is the aggregated view of one contact, assembled from all of its
// data rows. Single-valued fields are nil until a row of their kind sets them.
type Contact struct {
	Identifier      *int64
	DisplayName     *string
	GivenName       *string
	MiddleName      *string
	FamilyName      *string
	Prefix          *string
	Suffix          *string
	Company         *string
	JobTitle        *string
	Note            *string
	Birthday        *string
	Avatar          []byte
	Phones          []Item
	Emails          []Item
	PostalAddresses []PostalAddress
}

// New returns an empty contact bound to id.
func New(id int64) *Contact {
	return &Contact{
		Identifier:      &id,
		Phones:          []Item{},
		Emails:          []Item{},
		PostalAddresses: []PostalAddress{},
	}
}

// ID returns the identifier and whether the contact has one.
func (c *Contact) ID() (int64, bool) {
	if c == nil || c.Identifier == nil {
		return 0, false
	}
	return *c.Identifier, true
}

// Transport map keys.
const (
	KeyIdentifier      = "identifier"
	KeyDisplayName     = "displayName"
	KeyGivenName       = "givenName"
	KeyMiddleName      = "middleName"
	KeyFamilyName      = "familyName"
	KeyPrefix          = "prefix"
	KeySuffix          = "suffix"
	KeyCompany         = "company"
	KeyJobTitle        = "jobTitle"
	KeyNote            = "note"
	KeyBirthday        = "birthday"
	KeyAvatar          = "avatar"
	KeyPhones          = "phones"
	KeyEmails          = "emails"
	KeyPostalAddresses = "postalAddresses"

	KeyLabel    = "label"
	KeyValue    = "value"
	KeyStreet   = "street"
	KeyCity     = "city"
	KeyPostcode = "postcode"
	KeyRegion   = "region"
	KeyCountry  = "country"
)

// ToMap converts the contact to its transport representation. Every key is
// present so the schema stays stable; unset values are nil.
func (c *Contact) ToMap() map[string]interface{} {
	var identifier interface{}
	if id, ok := c.ID(); ok {
		identifier = strconv.FormatInt(id, 10)
	}

	var avatar interface{}
	if c.Avatar != nil {
		avatar = c.Avatar
	}

	phones := make([]interface{}, 0, len(c.Phones))
	for _, p := range c.Phones {
		phones = append(phones, p.toMap())
	}
	emails := make([]interface{}, 0, len(c.Emails))
	for _, e := range c.Emails {
		emails = append(emails, e.toMap())
	}
	addresses := make([]interface{}, 0, len(c.PostalAddresses))
	for _, a := range c.PostalAddresses {
		addresses = append(addresses, a.toMap())
	}

	return map[string]interface{}{
		KeyIdentifier:      identifier,
		KeyDisplayName:     strOrNil(c.DisplayName),
		KeyGivenName:       strOrNil(c.GivenName),
		KeyMiddleName:      strOrNil(c.MiddleName),
		KeyFamilyName:      strOrNil(c.FamilyName),
		KeyPrefix:          strOrNil(c.Prefix),
		KeySuffix:          strOrNil(c.Suffix),
		KeyCompany:         strOrNil(c.Company),
		KeyJobTitle:        strOrNil(c.JobTitle),
		KeyNote:            strOrNil(c.Note),
		KeyBirthday:        strOrNil(c.Birthday),
		KeyAvatar:          avatar,
		KeyPhones:          phones,
		KeyEmails:          emails,
		KeyPostalAddresses: addresses,
	}
}

func (i Item) toMap() map[string]interface{} {
	return map[string]interface{}{
		KeyLabel: i.Label,
		KeyValue: i.Value,
	}
}

func (a PostalAddress) toMap() map[string]interface{} {
	return map[string]interface{}{
		KeyLabel:    a.Label,
		KeyStreet:   a.Street,
		KeyCity:     a.City,
		KeyPostcode: a.Postcode,
		KeyRegion:   a.Region,
		KeyCountry:  a.Country,
	}
}

// FromMap parses the transport representation. The identifier may arrive as a
// decimal string or a JSON number; anything else leaves Identifier nil.
func FromMap(m map[string]interface{}) (*Contact, error) {
	if m == nil {
		return nil, fmt.Errorf("contact map is nil")
	}

	c := &Contact{
		Identifier:  parseIdentifier(m[KeyIdentifier]),
		DisplayName: optString(m[KeyDisplayName]),
		GivenName:   optString(m[KeyGivenName]),
		MiddleName:  optString(m[KeyMiddleName]),
		FamilyName:  optString(m[KeyFamilyName]),
		Prefix:      optString(m[KeyPrefix]),
		Suffix:      optString(m[KeySuffix]),
		Company:     optString(m[KeyCompany]),
		JobTitle:    optString(m[KeyJobTitle]),
		Note:        optString(m[KeyNote]),
		Birthday:    optString(m[KeyBirthday]),
	}

	avatar, err := parseBytes(m[KeyAvatar])
	if err != nil {
		return nil, fmt.Errorf("avatar: %w", err)
	}
	c.Avatar = avatar

	if c.Phones, err = parseItems(m[KeyPhones]); err != nil {
		return nil, fmt.Errorf("phones: %w", err)
	}
	if c.Emails, err = parseItems(m[KeyEmails]); err != nil {
		return nil, fmt.Errorf("emails: %w", err)
	}
	if c.PostalAddresses, err = parseAddresses(m[KeyPostalAddresses]); err != nil {
		return nil, fmt.Errorf("postalAddresses: %w", err)
	}
	return c, nil
}

// SortByGivenName stable-sorts contacts by given name. Contacts without a
// given name sort last.
func SortByGivenName(list []*Contact) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].GivenName, list[j].GivenName
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

func strOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func optString(v interface{}) *string {
	switch t := v.(type) {
	case string:
		return &t
	case nil:
		return nil
	default:
		s := fmt.Sprint(t)
		return &s
	}
}

func stringValue(v interface{}) string {
	if s := optString(v); s != nil {
		return *s
	}
	return ""
}

func parseIdentifier(v interface{}) *int64 {
	var id int64
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil
		}
		id = n
	case float64:
		if t != math.Trunc(t) {
			return nil
		}
		id = int64(t)
	case int:
		id = int64(t)
	case int64:
		id = t
	default:
		return nil
	}
	return &id
}

func parseBytes(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(t)
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
		return b, nil
	case []interface{}:
		b := make([]byte, len(t))
		for i, e := range t {
			n, ok := e.(float64)
			if !ok || n < 0 || n > 255 {
				return nil, fmt.Errorf("byte %d out of range", i)
			}
			b[i] = byte(n)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func parseList(v interface{}) ([]map[string]interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []map[string]interface{}:
		return t, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(t))
		for i, e := range t {
			m, ok := e.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("entry %d is %T, not an object", i, e)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}

func parseItems(v interface{}) ([]Item, error) {
	entries, err := parseList(v)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, Item{
			Label: stringValue(e[KeyLabel]),
			Value: stringValue(e[KeyValue]),
		})
	}
	return items, nil
}

func parseAddresses(v interface{}) ([]PostalAddress, error) {
	entries, err := parseList(v)
	if err != nil {
		return nil, err
	}
	addresses := make([]PostalAddress, 0, len(entries))
	for _, e := range entries {
		addresses = append(addresses, PostalAddress{
			Label:    stringValue(e[KeyLabel]),
			Street:   stringValue(e[KeyStreet]),
			City:     stringValue(e[KeyCity]),
			Postcode: stringValue(e[KeyPostcode]),
			Region:   stringValue(e[KeyRegion]),
			Country:  stringValue(e[KeyCountry]),
		})
	}
	return addresses, nil
}
