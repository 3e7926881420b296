package federation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/identity/pkg/identity"
)

// Provisioner resolves verified federated claims to a local account,
// creating one on first sign-in.
type Provisioner struct {
	store identity.Store
}

// NewProvisioner creates a provisioner backed by the given store
func NewProvisioner(store identity.Store) *Provisioner {
	return &Provisioner{store: store}
}

// Provision returns the local user for the verified claims. A returning
// email maps to its existing account, password-based or not; an unknown
// email gets a new account with a random user name so the public handle
// never leaks the address.
func (p *Provisioner) Provision(ctx context.Context, claims *Claims) (*identity.User, error) {
	user, err := p.store.UserByEmail(ctx, claims.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return nil, fmt.Errorf("resolving federated user: %w", err)
	}

	user = &identity.User{
		ID:          uuid.NewString(),
		UserName:    uuid.NewString(),
		Email:       claims.Email,
		DisplayName: claims.Name,
		ImageURL:    claims.Picture,
		CreatedAt:   time.Now().UTC(),
	}
	if user.DisplayName == "" {
		user.DisplayName = user.UserName
	}

	if err := p.store.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent first sign-in for the same email;
		// the existing account wins.
		if errors.Is(err, identity.ErrDuplicateEmail) {
			return p.store.UserByEmail(ctx, claims.Email)
		}
		return nil, fmt.Errorf("provisioning federated user: %w", err)
	}
	return user, nil
}
