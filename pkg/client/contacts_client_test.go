package client

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jowharshamshiri/GoContacts/pkg/contacts"
	"github.com/jowharshamshiri/GoContacts/pkg/manifest"
	"github.com/jowharshamshiri/GoContacts/pkg/models"
	"github.com/jowharshamshiri/GoContacts/pkg/plugin"
	"github.com/jowharshamshiri/GoContacts/pkg/protocol"
	"github.com/jowharshamshiri/GoContacts/pkg/provider"
	"github.com/jowharshamshiri/GoContacts/pkg/server"
	"github.com/jowharshamshiri/GoContacts/pkg/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func strPtr(s string) *string { return &s }

func startStack(t *testing.T) *ContactsClient {
	t.Helper()
	dir := t.TempDir()

	p, err := provider.OpenSQLite(filepath.Join(dir, "contacts.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	m, err := manifest.Default()
	require.NoError(t, err)
	cfg := server.DefaultServerConfig(filepath.Join(dir, "contacts.sock"))
	cfg.AllowedDirectories = []string{dir}
	cfg.Manifest = m
	srv := server.NewContactsServer(cfg)
	require.NoError(t, plugin.New(service.New(p), nil).Register(srv))
	require.NoError(t, srv.Listen())
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		srv.Stop()
		assert.NoError(t, <-done)
	})

	clientCfg := protocol.DefaultClientConfig()
	clientCfg.AllowedDirectories = []string{dir}
	c, err := Dial(context.Background(), cfg.SocketPath, clientCfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func imageSize(t *testing.T, b []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestContactLifecycleOverSocket(t *testing.T) {
	c := startStack(t)
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	require.NoError(t, c.AddContact(ctx, &contacts.Contact{
		GivenName:  strPtr("Ada"),
		FamilyName: strPtr("Lovelace"),
		Avatar:     pngImage(t, 200, 100),
		Phones:     []contacts.Item{{Label: "mobile", Value: "+44 20 7946 0958"}},
		Emails:     []contacts.Item{{Label: "work", Value: "ada@engines.test"}},
	}))
	require.NoError(t, c.AddContact(ctx, &contacts.Contact{GivenName: strPtr("Bea")}))

	list, err := c.GetContacts(ctx, nil, ReadOptions{WithThumbnails: true, OrderByGivenName: true})
	require.NoError(t, err)
	require.Len(t, list, 2)
	ada, bea := list[0], list[1]
	assert.Equal(t, "Ada Lovelace", *ada.DisplayName)
	assert.Equal(t, []contacts.Item{{Label: "mobile", Value: "+44 20 7946 0958"}}, ada.Phones)
	w, h := imageSize(t, ada.Avatar)
	assert.Equal(t, 96, w)
	assert.Equal(t, 48, h)
	assert.NotNil(t, bea.Avatar)
	assert.Empty(t, bea.Avatar)

	found, err := c.GetContactsForPhone(ctx, "020 7946 0958", ReadOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ada.Identifier, found[0].Identifier)

	full, err := c.GetAvatar(ctx, ada, true)
	require.NoError(t, err)
	w, h = imageSize(t, full)
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)

	none, err := c.GetAvatar(ctx, bea, false)
	require.NoError(t, err)
	assert.Nil(t, none)

	ada.JobTitle = strPtr("Programmer")
	ada.Avatar = nil
	require.NoError(t, c.UpdateContact(ctx, ada))
	list, err = c.GetContacts(ctx, strPtr("Ada"), ReadOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Programmer", *list[0].JobTitle)

	require.NoError(t, c.DeleteContact(ctx, ada))
	list, err = c.GetContacts(ctx, nil, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bea", *list[0].GivenName)
}

func TestWriteFailuresOverSocket(t *testing.T) {
	c := startStack(t)
	ctx := context.Background()

	err := c.DeleteContact(ctx, contacts.New(999))
	var rpcErr *models.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, plugin.MsgDeleteFailed, rpcErr.Message)

	err = c.UpdateContact(ctx, &contacts.Contact{GivenName: strPtr("Nobody")})
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, plugin.MsgUpdateFailed, rpcErr.Message)
}

func TestDecodeContactsRejectsUnexpectedShapes(t *testing.T) {
	list, err := decodeContacts(nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = decodeContacts("nope")
	assert.Error(t, err)
	_, err = decodeContacts([]interface{}{"nope"})
	assert.Error(t, err)
}
