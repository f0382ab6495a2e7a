// Package plugin binds the methods of the contacts channel to the service.
package plugin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jowharshamshiri/GoContacts/pkg/contacts"
	"github.com/jowharshamshiri/GoContacts/pkg/models"
	"github.com/jowharshamshiri/GoContacts/pkg/server"
	"github.com/jowharshamshiri/GoContacts/pkg/service"
)

// Method names of the contacts channel.
const (
	MethodGetContacts         = "getContacts"
	MethodGetContactsForPhone = "getContactsForPhone"
	MethodGetAvatar           = "getAvatar"
	MethodAddContact          = "addContact"
	MethodUpdateContact       = "updateContact"
	MethodDeleteContact       = "deleteContact"
)

// Failure messages reported to callers. Write failures carry no detail.
const (
	MsgReadFailed   = "Failed to read the contacts"
	MsgAvatarFailed = "Failed to load the avatar"
	MsgAddFailed    = "Failed to add the contact"
	MsgUpdateFailed = "Failed to update the contact, make sure it has a valid identifier"
	MsgDeleteFailed = "Failed to delete the contact, make sure it has a valid identifier"
)

// ValidationFailures maps each write method to the message reported when
// its arguments are malformed. Writes never expose validation detail.
func ValidationFailures() map[string]string {
	return map[string]string{
		MethodAddContact:    MsgAddFailed,
		MethodUpdateContact: MsgUpdateFailed,
		MethodDeleteContact: MsgDeleteFailed,
	}
}

// Registrar accepts method handlers. Both *server.ContactsServer and
// *server.HandlerRegistry implement it.
type Registrar interface {
	RegisterHandler(method string, handler server.RequestHandler) error
}

// ContactsPlugin translates channel calls into service calls
type ContactsPlugin struct {
	svc    *service.Service
	logger *zap.Logger
}

// New creates the plugin. A nil logger discards output.
func New(svc *service.Service, logger *zap.Logger) *ContactsPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactsPlugin{svc: svc, logger: logger.Named("plugin")}
}

// Register binds every contacts method on r
func (p *ContactsPlugin) Register(r Registrar) error {
	handlers := map[string]server.RequestHandler{
		MethodGetContacts:         server.NewArrayHandler(p.getContacts),
		MethodGetContactsForPhone: server.NewArrayHandler(p.getContactsForPhone),
		MethodGetAvatar:           server.NewCustomHandler[interface{}](p.getAvatar),
		MethodAddContact:          server.NewCustomHandler[interface{}](p.addContact),
		MethodUpdateContact:       server.NewCustomHandler[interface{}](p.updateContact),
		MethodDeleteContact:       server.NewCustomHandler[interface{}](p.deleteContact),
	}
	for method, h := range handlers {
		if err := r.RegisterHandler(method, h); err != nil {
			return fmt.Errorf("register %s: %w", method, err)
		}
	}
	return nil
}

func (p *ContactsPlugin) getContacts(ctx context.Context, req *models.Request) ([]interface{}, error) {
	query, err := optionalString(req.Args, "query")
	if err != nil {
		return nil, err
	}
	opts, err := readOptions(req.Args)
	if err != nil {
		return nil, err
	}

	list, err := p.svc.GetContacts(ctx, query, opts)
	if err != nil {
		p.logger.Warn("getContacts failed", zap.Error(err))
		return nil, models.NewFailure(MsgReadFailed)
	}
	return toMaps(list), nil
}

func (p *ContactsPlugin) getContactsForPhone(ctx context.Context, req *models.Request) ([]interface{}, error) {
	phone, err := optionalString(req.Args, "phone")
	if err != nil {
		return nil, err
	}
	opts, err := readOptions(req.Args)
	if err != nil {
		return nil, err
	}

	number := ""
	if phone != nil {
		number = *phone
	}
	list, err := p.svc.GetContactsForPhone(ctx, number, opts)
	if err != nil {
		p.logger.Warn("getContactsForPhone failed", zap.Error(err))
		return nil, models.NewFailure(MsgReadFailed)
	}
	return toMaps(list), nil
}

// getAvatar answers with the photo bytes, or null when the contact has none.
func (p *ContactsPlugin) getAvatar(ctx context.Context, req *models.Request) (interface{}, error) {
	raw, ok := req.Args["contact"].(map[string]interface{})
	if !ok {
		return nil, models.NewValidationError("contact", req.Args["contact"], "contact object is required")
	}
	c, err := parseContact("contact", raw)
	if err != nil {
		return nil, err
	}
	highRes, err := boolArg(req.Args, "photoHighResolution")
	if err != nil {
		return nil, err
	}

	avatar, err := p.svc.GetAvatar(ctx, c, highRes)
	if err != nil {
		p.logger.Warn("getAvatar failed", zap.Error(err))
		return nil, models.NewFailure(MsgAvatarFailed)
	}
	if avatar == nil {
		return nil, nil
	}
	return avatar, nil
}

func (p *ContactsPlugin) addContact(ctx context.Context, req *models.Request) (interface{}, error) {
	c, err := contacts.FromMap(req.Args)
	if err != nil {
		p.logger.Debug("addContact rejected", zap.Error(err))
		return nil, models.NewFailure(MsgAddFailed)
	}
	if _, err := p.svc.AddContact(ctx, c); err != nil {
		return nil, models.NewFailure(MsgAddFailed)
	}
	return nil, nil
}

func (p *ContactsPlugin) updateContact(ctx context.Context, req *models.Request) (interface{}, error) {
	c, err := contacts.FromMap(req.Args)
	if err != nil {
		p.logger.Debug("updateContact rejected", zap.Error(err))
		return nil, models.NewFailure(MsgUpdateFailed)
	}
	if err := p.svc.UpdateContact(ctx, c); err != nil {
		return nil, models.NewFailure(MsgUpdateFailed)
	}
	return nil, nil
}

func (p *ContactsPlugin) deleteContact(ctx context.Context, req *models.Request) (interface{}, error) {
	c, err := contacts.FromMap(req.Args)
	if err != nil {
		p.logger.Debug("deleteContact rejected", zap.Error(err))
		return nil, models.NewFailure(MsgDeleteFailed)
	}
	if err := p.svc.DeleteContact(ctx, c); err != nil {
		return nil, models.NewFailure(MsgDeleteFailed)
	}
	return nil, nil
}

func toMaps(list []*contacts.Contact) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, c := range list {
		out = append(out, c.ToMap())
	}
	return out
}

func readOptions(args map[string]interface{}) (service.ReadOptions, error) {
	var opts service.ReadOptions
	var err error
	if opts.WithThumbnails, err = boolArg(args, "withThumbnails"); err != nil {
		return opts, err
	}
	if opts.PhotoHighResolution, err = boolArg(args, "photoHighResolution"); err != nil {
		return opts, err
	}
	if opts.OrderByGivenName, err = boolArg(args, "orderByGivenName"); err != nil {
		return opts, err
	}
	return opts, nil
}

// boolArg reads an optional flag. Missing and null mean false.
func boolArg(args map[string]interface{}, key string) (bool, error) {
	switch v := args[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, models.NewValidationError(key, v, "expected boolean")
	}
}

func optionalString(args map[string]interface{}, key string) (*string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	default:
		return nil, models.NewValidationError(key, v, "expected string")
	}
}

func parseContact(field string, m map[string]interface{}) (*contacts.Contact, error) {
	c, err := contacts.FromMap(m)
	if err != nil {
		return nil, models.NewValidationError(field, nil, err.Error())
	}
	return c, nil
}
