package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jowharshamshiri/GoContacts/pkg/contacts"
	"github.com/jowharshamshiri/GoContacts/pkg/provider"
)

// AddContact stores c as a new contact and returns its identifier.
func (s *Service) AddContact(ctx context.Context, c *contacts.Contact) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("contact is nil")
	}

	ops := []provider.Operation{
		provider.NewInsert(provider.TableRawContacts).
			WithValue(provider.ColAccountType, nil).
			WithValue(provider.ColAccountName, nil).
			Build(),
	}
	owner := func(b *provider.OpBuilder) *provider.OpBuilder {
		return b.WithValueBackReference(provider.ColRawContactID, 0)
	}

	ops = append(ops,
		owner(nameInsert(c)).Build(),
		owner(noteInsert(c)).Build(),
		owner(organizationInsert(c, false)).Build(),
		owner(photoInsert(c)).Build(),
	)
	for _, b := range detailInserts(c) {
		ops = append(ops, owner(b).Build())
	}

	results, err := s.provider.ApplyBatch(ctx, ops)
	if err != nil {
		s.logger.Warn("add contact failed", zap.Error(err))
		return 0, fmt.Errorf("add contact: %w", err)
	}
	id := results[0].ID
	s.logger.Debug("contact added", zap.Int64("contact", id), zap.Int("operations", len(ops)))
	return id, nil
}

// UpdateContact replaces the details of an existing contact. The name row is
// updated in place; organization, note, photo, phones, emails and postal
// addresses are rewritten. Other rows, such as events, are kept.
func (s *Service) UpdateContact(ctx context.Context, c *contacts.Contact) error {
	id, ok := c.ID()
	if !ok {
		return ErrInvalidIdentifier
	}

	ops := []provider.Operation{
		provider.NewAssert(provider.TableRawContacts).WithContact(id).WithExpectedCount(1).Build(),
	}
	for _, mime := range []string{
		provider.MimeOrganization,
		provider.MimePhone,
		provider.MimeEmail,
		provider.MimeNote,
		provider.MimePostal,
		provider.MimePhoto,
	} {
		ops = append(ops, provider.NewDelete(provider.TableData).WithContact(id).WithMimeType(mime).Build())
	}

	ops = append(ops, provider.NewUpdate(provider.TableData).
		WithContact(id).
		WithMimeType(provider.MimeName).
		WithData(provider.NameGiven, c.GivenName).
		WithData(provider.NameMiddle, c.MiddleName).
		WithData(provider.NameFamily, c.FamilyName).
		WithData(provider.NamePrefix, c.Prefix).
		WithData(provider.NameSuffix, c.Suffix).
		Build())

	owner := func(b *provider.OpBuilder) *provider.OpBuilder {
		return b.WithValue(provider.ColRawContactID, id)
	}
	ops = append(ops,
		owner(organizationInsert(c, true)).Build(),
		owner(noteInsert(c)).Build(),
		owner(photoInsert(c)).Build(),
	)
	for _, b := range detailInserts(c) {
		ops = append(ops, owner(b).Build())
	}

	if _, err := s.provider.ApplyBatch(ctx, ops); err != nil {
		s.logger.Warn("update contact failed", zap.Int64("contact", id), zap.Error(err))
		return fmt.Errorf("update contact %d: %w", id, err)
	}
	s.logger.Debug("contact updated", zap.Int64("contact", id))
	return nil
}

// DeleteContact removes a contact and all of its rows.
func (s *Service) DeleteContact(ctx context.Context, c *contacts.Contact) error {
	id, ok := c.ID()
	if !ok {
		return ErrInvalidIdentifier
	}

	ops := []provider.Operation{
		provider.NewAssert(provider.TableRawContacts).WithContact(id).WithExpectedCount(1).Build(),
		provider.NewDelete(provider.TableRawContacts).WithContact(id).Build(),
	}
	if _, err := s.provider.ApplyBatch(ctx, ops); err != nil {
		s.logger.Warn("delete contact failed", zap.Int64("contact", id), zap.Error(err))
		return fmt.Errorf("delete contact %d: %w", id, err)
	}
	s.logger.Debug("contact deleted", zap.Int64("contact", id))
	return nil
}

func dataInsert(mime string) *provider.OpBuilder {
	return provider.NewInsert(provider.TableData).WithValue(provider.ColMimeType, mime)
}

func nameInsert(c *contacts.Contact) *provider.OpBuilder {
	return dataInsert(provider.MimeName).
		WithData(provider.NameGiven, c.GivenName).
		WithData(provider.NameMiddle, c.MiddleName).
		WithData(provider.NameFamily, c.FamilyName).
		WithData(provider.NamePrefix, c.Prefix).
		WithData(provider.NameSuffix, c.Suffix)
}

func noteInsert(c *contacts.Contact) *provider.OpBuilder {
	return dataInsert(provider.MimeNote).WithData(provider.NoteText, c.Note)
}

// organizationInsert writes company and title. Updates also tag the row as a
// work organization.
func organizationInsert(c *contacts.Contact, typed bool) *provider.OpBuilder {
	b := dataInsert(provider.MimeOrganization).
		WithData(provider.OrgCompany, c.Company).
		WithData(provider.OrgTitle, c.JobTitle)
	if typed {
		b.WithData(provider.OrgType, contacts.OrganizationTypeWork)
	}
	return b
}

func photoInsert(c *contacts.Contact) *provider.OpBuilder {
	var blob interface{}
	if len(c.Avatar) > 0 {
		blob = c.Avatar
	}
	return dataInsert(provider.MimePhoto).
		WithValue(provider.ColIsSuperPrimary, 1).
		WithValue(provider.ColPhoto, blob)
}

// detailInserts builds one row per phone, email and postal address.
func detailInserts(c *contacts.Contact) []*provider.OpBuilder {
	var out []*provider.OpBuilder

	for _, p := range c.Phones {
		b := dataInsert(provider.MimePhone).WithData(provider.PhoneNumber, p.Value)
		code, custom := contacts.PhoneType(p.Label)
		b.WithData(provider.PhoneType, code)
		if custom {
			b.WithData(provider.PhoneLabel, p.Label)
		}
		out = append(out, b)
	}

	for _, e := range c.Emails {
		b := dataInsert(provider.MimeEmail).WithData(provider.EmailAddress, e.Value)
		code, custom := contacts.EmailType(e.Label)
		b.WithData(provider.EmailType, code)
		if custom {
			b.WithData(provider.EmailLabel, e.Label)
		}
		out = append(out, b)
	}

	for _, a := range c.PostalAddresses {
		code, _ := contacts.PostalType(a.Label)
		out = append(out, dataInsert(provider.MimePostal).
			WithData(provider.PostalType, code).
			WithData(provider.PostalLabel, a.Label).
			WithData(provider.PostalStreet, a.Street).
			WithData(provider.PostalCity, a.City).
			WithData(provider.PostalRegion, a.Region).
			WithData(provider.PostalPostcode, a.Postcode).
			WithData(provider.PostalCountry, a.Country))
	}

	return out
}
