package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultManifest(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "GoContacts", m.Name)
	assert.Equal(t, []string{
		"addContact", "deleteContact", "getAvatar", "getContacts", "getContactsForPhone", "updateContact",
	}, m.MethodNames(ContactsChannel))
	assert.True(t, m.HasMethod(ContactsChannel, "getAvatar"))
	assert.False(t, m.HasMethod(ContactsChannel, "sendEmail"))
	assert.Nil(t, m.MethodNames("calendar"))
}

func TestValidateArgsUnknownTargets(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	err = m.ValidateArgs("calendar", "getContacts", nil)
	assert.True(t, errors.Is(err, ErrUnknownChannel))

	err = m.ValidateArgs(ContactsChannel, "sendEmail", nil)
	assert.True(t, errors.Is(err, ErrUnknownMethod))
}

func TestValidateGetContactsArgs(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{"no args", nil, ""},
		{"null query", map[string]interface{}{"query": nil, "withThumbnails": false}, ""},
		{"full", map[string]interface{}{
			"query": "Ad", "withThumbnails": true, "photoHighResolution": false, "orderByGivenName": true,
		}, ""},
		{"wrong type", map[string]interface{}{"withThumbnails": "yes"}, "withThumbnails"},
		{"unknown arg", map[string]interface{}{"limit": 10.0}, "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateArgs(ContactsChannel, "getContacts", tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantErr, ve.Field)
		})
	}
}

func TestValidateContactModelArgs(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	contact := map[string]interface{}{
		"identifier":  "12",
		"givenName":   "Ada",
		"familyName":  nil,
		"avatar":      "iVBORw0KGgo=",
		"phones":      []interface{}{map[string]interface{}{"label": "mobile", "value": "555"}},
		"emails":      []interface{}{},
		"postalAddresses": []interface{}{
			map[string]interface{}{"label": "home", "city": "London"},
		},
	}
	assert.NoError(t, m.ValidateArgs(ContactsChannel, "updateContact", contact))

	contact["phones"] = []interface{}{map[string]interface{}{"label": "mobile", "number": "555"}}
	var ve *ValidationError
	require.ErrorAs(t, m.ValidateArgs(ContactsChannel, "addContact", contact), &ve)
	assert.Equal(t, "args.phones[0].number", ve.Field)

	contact["phones"] = "555"
	require.ErrorAs(t, m.ValidateArgs(ContactsChannel, "addContact", contact), &ve)
	assert.Equal(t, "args.phones", ve.Field)

	err = m.ValidateArgs(ContactsChannel, "getAvatar", map[string]interface{}{"photoHighResolution": true})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "contact", ve.Field)
}

func TestParseRejectsInvalidManifests(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", "  "},
		{"unknown field", `{"version":"1","name":"x","channels":{},"extra":true}`},
		{"no channels", `{"version":"1","name":"x","channels":{}}`},
		{"bad arg type", `{"version":"1","name":"x","channels":{"c":{"name":"c","methods":{"m":{"name":"m","args":{"a":{"name":"a","type":"date"}}}}}}}`},
		{"dangling model", `{"version":"1","name":"x","channels":{"c":{"name":"c","methods":{"m":{"name":"m","argsModelRef":"Nope"}}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseFromFileRoundTrip(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	dir := t.TempDir()

	js, err := SerializeToJSON(m)
	require.NoError(t, err)
	jsonPath := filepath.Join(dir, "contacts.json")
	require.NoError(t, os.WriteFile(jsonPath, js, 0o600))
	fromJSON, err := ParseFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, m.MethodNames(ContactsChannel), fromJSON.MethodNames(ContactsChannel))

	ym, err := SerializeToYAML(m)
	require.NoError(t, err)
	yamlPath := filepath.Join(dir, "contacts.manifest")
	require.NoError(t, os.WriteFile(yamlPath, ym, 0o600))
	fromYAML, err := ParseFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "Contact", fromYAML.Channels[ContactsChannel].Methods["addContact"].ArgsModelRef)

	_, err = ParseFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
