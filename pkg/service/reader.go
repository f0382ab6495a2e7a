package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jowharshamshiri/GoContacts/pkg/contacts"
	"github.com/jowharshamshiri/GoContacts/pkg/provider"
)

// aggregatedKinds are the row kinds folded into a contact.
var aggregatedKinds = []string{
	provider.MimeNote,
	provider.MimeEmail,
	provider.MimePhone,
	provider.MimeName,
	provider.MimeOrganization,
	provider.MimePostal,
	provider.MimeEvent,
}

// ReadOptions shape a contact listing.
type ReadOptions struct {
	WithThumbnails      bool
	PhotoHighResolution bool
	OrderByGivenName    bool
}

// GetContacts lists contacts whose display name starts with query. A nil
// query lists every contact.
func (s *Service) GetContacts(ctx context.Context, query *string, opts ReadOptions) ([]*contacts.Contact, error) {
	cur, err := s.provider.Query(ctx, provider.Query{
		MimeTypes:         aggregatedKinds,
		DisplayNamePrefix: query,
	})
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}

	list, err := Aggregate(cur)
	if err != nil {
		return nil, err
	}
	logContactCount(s.logger, "getContacts", len(list))
	return s.finish(ctx, list, opts), nil
}

// GetContactsForPhone lists contacts owning a number that matches phone. An
// empty phone, or one matching nobody, yields an empty list.
func (s *Service) GetContactsForPhone(ctx context.Context, phone string, opts ReadOptions) ([]*contacts.Contact, error) {
	if strings.TrimSpace(phone) == "" {
		return []*contacts.Contact{}, nil
	}

	ids, err := s.provider.LookupPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup phone: %w", err)
	}
	if len(ids) == 0 {
		return []*contacts.Contact{}, nil
	}

	cur, err := s.provider.Query(ctx, provider.Query{
		MimeTypes:  aggregatedKinds,
		ContactIDs: ids,
	})
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}

	list, err := Aggregate(cur)
	if err != nil {
		return nil, err
	}
	logContactCount(s.logger, "getContactsForPhone", len(list))
	return s.finish(ctx, list, opts), nil
}

func (s *Service) finish(ctx context.Context, list []*contacts.Contact, opts ReadOptions) []*contacts.Contact {
	if opts.WithThumbnails {
		s.attachThumbnails(ctx, list, opts.PhotoHighResolution)
	}
	if opts.OrderByGivenName {
		contacts.SortByGivenName(list)
	}
	return list
}

// attachThumbnails loads each contact's photo. A missing or unreadable photo
// becomes an empty avatar, never nil.
func (s *Service) attachThumbnails(ctx context.Context, list []*contacts.Contact, highRes bool) {
	var g errgroup.Group
	g.SetLimit(s.thumbnailConcurrency)
	for _, c := range list {
		c := c
		g.Go(func() error {
			id, _ := c.ID()
			avatar := s.loadAvatar(ctx, id, highRes)
			if avatar == nil {
				avatar = []byte{}
			}
			c.Avatar = avatar
			return nil
		})
	}
	g.Wait()
}

// Aggregate folds data rows into contacts, one per contact id, in the order
// each id first appears. It closes cur.
func Aggregate(cur provider.Cursor) ([]*contacts.Contact, error) {
	defer cur.Close()

	var (
		order []*contacts.Contact
		byID  = make(map[int64]*contacts.Contact)
	)
	for cur.Next() {
		row := cur.Row()

		c, ok := byID[row.ContactID]
		if !ok {
			c = contacts.New(row.ContactID)
			byID[row.ContactID] = c
			order = append(order, c)
		}

		c.DisplayName = row.DisplayName
		applyRow(c, row)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("read contact rows: %w", err)
	}

	if order == nil {
		order = []*contacts.Contact{}
	}
	return order, nil
}

func applyRow(c *contacts.Contact, row provider.Row) {
	switch row.MimeType {
	case provider.MimeName:
		c.GivenName = textOrEmpty(row, provider.NameGiven)
		c.MiddleName = textOrEmpty(row, provider.NameMiddle)
		c.FamilyName = textOrEmpty(row, provider.NameFamily)
		c.Prefix = textOrEmpty(row, provider.NamePrefix)
		c.Suffix = textOrEmpty(row, provider.NameSuffix)

	case provider.MimeNote:
		c.Note = textOrEmpty(row, provider.NoteText)

	case provider.MimePhone:
		number := row.Text(provider.PhoneNumber)
		if isBlank(number) {
			return
		}
		c.Phones = append(c.Phones, contacts.Item{
			Label: contacts.PhoneLabel(row.Int(provider.PhoneType), row.Text(provider.PhoneLabel)),
			Value: *number,
		})

	case provider.MimeEmail:
		address := row.Text(provider.EmailAddress)
		if isBlank(address) {
			return
		}
		c.Emails = append(c.Emails, contacts.Item{
			Label: contacts.EmailLabel(row.Int(provider.EmailType), row.Text(provider.EmailLabel)),
			Value: *address,
		})

	case provider.MimeOrganization:
		c.Company = textOrEmpty(row, provider.OrgCompany)
		c.JobTitle = textOrEmpty(row, provider.OrgTitle)

	case provider.MimePostal:
		c.PostalAddresses = append(c.PostalAddresses, contacts.PostalAddress{
			Label:    contacts.PostalLabel(row.Int(provider.PostalType), row.Text(provider.PostalLabel)),
			Street:   deref(row.Text(provider.PostalStreet)),
			City:     deref(row.Text(provider.PostalCity)),
			Postcode: deref(row.Text(provider.PostalPostcode)),
			Region:   deref(row.Text(provider.PostalRegion)),
			Country:  deref(row.Text(provider.PostalCountry)),
		})

	case provider.MimeEvent:
		if row.Int(provider.EventType) == contacts.EventTypeBirthday {
			c.Birthday = row.Text(provider.EventStartDate)
		}
	}
}

// textOrEmpty reads a single-valued field. A row of the field's kind always
// sets it, so NULL becomes "".
func textOrEmpty(row provider.Row, c provider.Column) *string {
	if v := row.Text(c); v != nil {
		return v
	}
	empty := ""
	return &empty
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func logContactCount(logger *zap.Logger, op string, n int) {
	logger.Debug("contacts read", zap.String("operation", op), zap.Int("count", n))
}
