// Package scim adapts a minimal subset of the SCIM 2.0 User resource
// (RFC 7643 §4.1) onto identity.UserService/OrgService, so an external
// directory (Okta, Azure AD, etc.) can push user provisioning events at
// an org's SVID-authenticated sync endpoint.
package scim

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/identity"
)

// UserResource is the subset of the SCIM core User schema this adapter
// understands: identifying email, display name, and active flag. Groups,
// extended enterprise attributes, and PATCH op-based partial updates are
// not implemented.
type UserResource struct {
	Schemas  []string `json:"schemas"`
	ID       string   `json:"id,omitempty"`
	UserName string   `json:"userName"`
	Name     struct {
		Formatted string `json:"formatted"`
	} `json:"name"`
	Emails []struct {
		Value   string `json:"value"`
		Primary bool   `json:"primary"`
	} `json:"emails"`
	Active bool `json:"active"`
}

// PrimaryEmail returns the resource's primary email, falling back to the
// first listed email when none is flagged primary.
func (u UserResource) PrimaryEmail() string {
	var fallback string
	for _, e := range u.Emails {
		if e.Primary {
			return e.Value
		}
		if fallback == "" {
			fallback = e.Value
		}
	}
	return fallback
}

// Adapter upserts SCIM User resources into Loom's identity model, scoped
// to one organization per call (the org a SCIM bearer token is minted
// for).
type Adapter struct {
	users *identity.UserService
	orgs  *identity.OrgService
}

// NewAdapter constructs an Adapter.
func NewAdapter(users *identity.UserService, orgs *identity.OrgService) *Adapter {
	return &Adapter{users: users, orgs: orgs}
}

// UpsertUser provisions or updates a user from a SCIM User resource and
// ensures org membership at role. An existing user is matched by primary
// email; a miss creates a new user (with its own personal org, per
// identity.UserService.Create) before adding the org membership.
func (a *Adapter) UpsertUser(ctx context.Context, org ids.OrgID, resource UserResource, role identity.OrgRole) (identity.User, error) {
	email := resource.PrimaryEmail()
	if email == "" {
		return identity.User{}, fmt.Errorf("scim: user resource has no email")
	}

	existing, found, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		return identity.User{}, err
	}

	var user identity.User
	if found {
		user = existing
	} else {
		displayName := resource.Name.Formatted
		if displayName == "" {
			displayName = resource.UserName
		}
		created, _, err := a.users.Create(ctx, displayName, personalOrgSlug(resource.UserName))
		if err != nil {
			return identity.User{}, fmt.Errorf("scim: provision user: %w", err)
		}
		user, err = a.users.SetEmail(ctx, created.ID, email)
		if err != nil {
			return identity.User{}, fmt.Errorf("scim: set provisioned email: %w", err)
		}
	}

	if err := a.orgs.AddMember(ctx, org, user.ID, role, scimProvisioner(org)); err != nil {
		if !isAlreadyMember(err) {
			return identity.User{}, fmt.Errorf("scim: add member: %w", err)
		}
	}

	return user, nil
}

func scimProvisioner(org ids.OrgID) *string {
	s := "scim:" + org.String()
	return &s
}

func isAlreadyMember(err error) bool {
	e, ok := apperr.As(err)
	return ok && e.Code == apperr.CodeAlreadyMember
}

// personalOrgSlug derives a candidate personal-org slug from a SCIM
// userName, appending a random suffix so two provisioning calls for
// similarly-named users don't collide; identity.OrgService.create still
// enforces the real uniqueness check.
func personalOrgSlug(userName string) string {
	base := strings.ToLower(userName)
	if at := strings.IndexByte(base, '@'); at != -1 {
		base = base[:at]
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == '.', r == '_', r == ' ':
			b.WriteByte('-')
		}
	}
	slug := b.String()
	if slug == "" {
		slug = "user"
	}
	return slug + "-" + randomSuffix()
}

func randomSuffix() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
