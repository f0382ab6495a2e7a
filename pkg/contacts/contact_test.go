package contacts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestPhoneLabels(t *testing.T) {
	assert.Equal(t, "home", PhoneLabel(PhoneTypeHome, nil))
	assert.Equal(t, "fax work", PhoneLabel(PhoneTypeFaxWork, nil))
	assert.Equal(t, "company", PhoneLabel(PhoneTypeCompanyMain, nil))
	assert.Equal(t, "other", PhoneLabel(99, nil))
	assert.Equal(t, "Boat", PhoneLabel(PhoneTypeCustom, strPtr("Boat")))
	assert.Equal(t, "", PhoneLabel(PhoneTypeCustom, nil))

	code, custom := PhoneType("Mobile")
	assert.Equal(t, PhoneTypeMobile, code)
	assert.False(t, custom)

	code, custom = PhoneType("boat")
	assert.Equal(t, PhoneTypeCustom, code)
	assert.True(t, custom)
}

func TestEmailAndPostalLabels(t *testing.T) {
	assert.Equal(t, "mobile", EmailLabel(EmailTypeMobile, nil))
	assert.Equal(t, "other", EmailLabel(42, nil))
	assert.Equal(t, "school", EmailLabel(EmailTypeCustom, strPtr("school")))

	code, custom := EmailType("work")
	assert.Equal(t, EmailTypeWork, code)
	assert.False(t, custom)

	assert.Equal(t, "work", PostalLabel(PostalTypeWork, nil))
	assert.Equal(t, "cabin", PostalLabel(PostalTypeCustom, strPtr("cabin")))
	code, custom = PostalType("cabin")
	assert.Equal(t, PostalTypeCustom, code)
	assert.True(t, custom)
}

func TestToMapKeepsEveryKey(t *testing.T) {
	c := New(7)
	c.GivenName = strPtr("Ada")
	m := c.ToMap()

	for _, key := range []string{
		KeyIdentifier, KeyDisplayName, KeyGivenName, KeyMiddleName, KeyFamilyName,
		KeyPrefix, KeySuffix, KeyCompany, KeyJobTitle, KeyNote, KeyBirthday,
		KeyAvatar, KeyPhones, KeyEmails, KeyPostalAddresses,
	} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, "7", m[KeyIdentifier])
	assert.Equal(t, "Ada", m[KeyGivenName])
	assert.Nil(t, m[KeyFamilyName])
	assert.Nil(t, m[KeyAvatar])
	assert.Empty(t, m[KeyPhones])
}

func TestToMapEmptyAvatarStaysNonNil(t *testing.T) {
	c := New(1)
	c.Avatar = []byte{}
	m := c.ToMap()
	assert.NotNil(t, m[KeyAvatar])
	assert.Equal(t, []byte{}, m[KeyAvatar])
}

func TestFromMapAfterJSONTransport(t *testing.T) {
	c := New(12)
	c.GivenName = strPtr("Grace")
	c.FamilyName = strPtr("Hopper")
	c.Avatar = []byte{1, 2, 3}
	c.Phones = []Item{{Label: "mobile", Value: "+1 555 0100"}}
	c.Emails = []Item{{Label: "work", Value: "grace@navy.mil"}}
	c.PostalAddresses = []PostalAddress{{Label: "home", Street: "1 Main", City: "Arlington", Country: "US"}}

	raw, err := json.Marshal(c.ToMap())
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	got, err := FromMap(decoded)
	require.NoError(t, err)

	id, ok := got.ID()
	require.True(t, ok)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, "Grace", *got.GivenName)
	assert.Nil(t, got.MiddleName)
	assert.Equal(t, []byte{1, 2, 3}, got.Avatar)
	assert.Equal(t, c.Phones, got.Phones)
	assert.Equal(t, c.Emails, got.Emails)
	assert.Equal(t, c.PostalAddresses, got.PostalAddresses)
}

func TestFromMapIdentifierForms(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  *int64
	}{
		{"string", "42", func() *int64 { v := int64(42); return &v }()},
		{"number", float64(42), func() *int64 { v := int64(42); return &v }()},
		{"missing", nil, nil},
		{"garbage", "abc", nil},
		{"fractional", 4.5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := FromMap(map[string]interface{}{KeyIdentifier: tt.value})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Identifier)
		})
	}
}

func TestFromMapRejectsMalformedLists(t *testing.T) {
	_, err := FromMap(map[string]interface{}{KeyPhones: "not a list"})
	assert.Error(t, err)

	_, err = FromMap(map[string]interface{}{KeyEmails: []interface{}{"nope"}})
	assert.Error(t, err)

	_, err = FromMap(map[string]interface{}{KeyAvatar: []interface{}{float64(300)}})
	assert.Error(t, err)

	_, err = FromMap(nil)
	assert.Error(t, err)
}

func TestSortByGivenName(t *testing.T) {
	mk := func(id int64, given *string) *Contact {
		c := New(id)
		c.GivenName = given
		return c
	}
	list := []*Contact{
		mk(1, nil),
		mk(2, strPtr("bob")),
		mk(3, strPtr("Alice")),
		mk(4, strPtr("bob")),
		mk(5, nil),
		mk(6, strPtr("alice")),
	}

	SortByGivenName(list)

	var order []int64
	for _, c := range list {
		id, _ := c.ID()
		order = append(order, id)
	}
	// "Alice" < "alice" < "bob"; equal keys and nils keep input order.
	assert.Equal(t, []int64{3, 6, 2, 4, 1, 5}, order)
}
