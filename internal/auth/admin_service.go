// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AdminService lets administrators inspect and edit identities. Callers
// are expected to have checked the admin flag of the requesting session.
type AdminService struct {
	store CredentialStore
	opts  options
}

// NewAdminService creates an AdminService.
func NewAdminService(store CredentialStore, opts ...Option) (*AdminService, error) {
	if store == nil {
		return nil, oops.Code("ADMIN_SERVICE_INVALID").Errorf("credential store is required")
	}
	return &AdminService{store: store, opts: newOptions(opts)}, nil
}

// IdentityUpdate holds the fields an administrator may change. Blank
// strings and a nil IsAdmin are left unchanged.
type IdentityUpdate struct {
	Name    string
	Email   string
	IsAdmin *bool
}

// List returns the public view of every identity in creation order.
func (s *AdminService) List(ctx context.Context) (_ []PublicIdentity, err error) {
	defer func() { s.opts.recorder.RecordOperation("admin_list", outcome(err)) }()

	identities, err := s.store.List(ctx)
	if err != nil {
		return nil, unavailable("ADMIN_LIST_FAILED", "list identities", err)
	}
	out := make([]PublicIdentity, 0, len(identities))
	for _, identity := range identities {
		out = append(out, identity.Public())
	}
	return out, nil
}

// Get returns the public view of one identity.
func (s *AdminService) Get(ctx context.Context, id ulid.ULID) (*PublicIdentity, error) {
	identity, err := loadByID(s.store, id, "ADMIN")(ctx)
	if err != nil {
		return nil, err
	}
	p := identity.Public()
	return &p, nil
}

// Update applies update to the identity. An email held by another identity
// fails with ErrEmailTaken.
func (s *AdminService) Update(ctx context.Context, id ulid.ULID, update IdentityUpdate) (_ *PublicIdentity, err error) {
	defer func() { s.opts.recorder.RecordOperation("admin_update", outcome(err)) }()

	identity, err := compareAndSave(ctx, s.store, s.opts.saveBackoff,
		loadByID(s.store, id, "ADMIN"),
		func(identity *Identity) error {
			if err := identity.rename(update.Name, update.Email); err != nil {
				return err
			}
			if update.IsAdmin != nil {
				identity.IsAdmin = *update.IsAdmin
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	s.opts.logger.InfoContext(ctx, "identity updated by admin",
		"operation", "admin_update",
		"identity_id", id.String(),
		"is_admin", identity.IsAdmin)
	p := identity.Public()
	return &p, nil
}
