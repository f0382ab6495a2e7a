package manifest

import (
	_ "embed"
	"sync"
)

// ContactsChannel is the channel the contacts methods are served on.
const ContactsChannel = "contacts"

//go:embed contacts.yaml
var contactsYAML []byte

var (
	defaultOnce     sync.Once
	defaultManifest *Manifest
	defaultErr      error
)

// Default returns the built-in manifest of the contacts channel. The result
// is shared; callers must not modify it.
func Default() (*Manifest, error) {
	defaultOnce.Do(func() {
		defaultManifest, defaultErr = ParseYAML(contactsYAML)
	})
	return defaultManifest, defaultErr
}
