// Package roles maps capability roles to holder identities.
package roles

import (
	"fmt"
	"sort"
	"sync"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/identity"
)

// Change is a grant or revoke request.
type Change struct {
	Grant  bool
	Role   domain.Role
	Holder domain.Identity
}

// Registry is the role table. Changes are serialized; lookups run concurrently.
type Registry struct {
	mu      sync.RWMutex
	holders map[domain.Role]map[domain.Identity]struct{}
}

// NewRegistry creates a registry whose initial ADMIN holders are admins.
func NewRegistry(admins ...domain.Identity) *Registry {
	r := &Registry{
		holders: make(map[domain.Role]map[domain.Identity]struct{}),
	}
	for _, a := range admins {
		r.set(domain.RoleAdmin, a, true)
	}
	return r
}

// HasRole reports whether holder currently holds role.
func (r *Registry) HasRole(role domain.Role, holder domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.has(role, holder)
}

// HasAny reports whether holder holds at least one of roles.
func (r *Registry) HasAny(holder domain.Identity, roles ...domain.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, role := range roles {
		if r.has(role, holder) {
			return true
		}
	}
	return false
}

// Require returns ErrUnauthorized unless caller holds one of roles.
func (r *Registry) Require(caller domain.Identity, roles ...domain.Role) error {
	if r.HasAny(caller, roles...) {
		return nil
	}
	return unauthorized(caller, roles)
}

// Holders returns the holders of role in lexical order.
func (r *Registry) Holders(role domain.Role) []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Identity, 0, len(r.holders[role]))
	for h := range r.holders[role] {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Grant gives role to holder. Caller must hold ADMIN.
func (r *Registry) Grant(caller domain.Identity, role domain.Role, holder domain.Identity) error {
	_, err := r.Apply(caller, Change{Grant: true, Role: role, Holder: holder}, nil)
	return err
}

// Revoke removes role from holder. Caller must hold ADMIN.
func (r *Registry) Revoke(caller domain.Identity, role domain.Role, holder domain.Identity) error {
	_, err := r.Apply(caller, Change{Grant: false, Role: role, Holder: holder}, nil)
	return err
}

// Apply authorizes and validates c, calls persist, and only then mutates the
// table. The whole sequence holds the write lock, so persist observes the same
// state the change is validated against. Apply returns false without calling
// persist when c would not change the table.
func (r *Registry) Apply(caller domain.Identity, c Change, persist func() error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.has(domain.RoleAdmin, caller) {
		return false, unauthorized(caller, []domain.Role{domain.RoleAdmin})
	}
	if !c.Role.Valid() {
		return false, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, c.Role)
	}
	if c.Holder == "" || c.Holder == domain.CustodyAccount || c.Holder == domain.BreakerAccount {
		return false, fmt.Errorf("%w: holder %q", domain.ErrInvalidIdentity, c.Holder)
	}
	if r.has(c.Role, c.Holder) == c.Grant {
		return false, nil
	}
	if c.Grant && c.Role == domain.RoleValidator {
		if err := identity.ValidateKey(c.Holder); err != nil {
			return false, err
		}
	}
	if !c.Grant && c.Role == domain.RoleAdmin && len(r.holders[domain.RoleAdmin]) == 1 {
		return false, domain.ErrLastAdmin
	}

	if persist != nil {
		if err := persist(); err != nil {
			return false, err
		}
	}

	r.set(c.Role, c.Holder, c.Grant)
	return true, nil
}

// Restore sets a role assignment without authorization. Used for journal replay.
func (r *Registry) Restore(role domain.Role, holder domain.Identity, granted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(role, holder, granted)
}

func (r *Registry) has(role domain.Role, holder domain.Identity) bool {
	_, ok := r.holders[role][holder]
	return ok
}

func (r *Registry) set(role domain.Role, holder domain.Identity, granted bool) {
	if granted {
		if r.holders[role] == nil {
			r.holders[role] = make(map[domain.Identity]struct{})
		}
		r.holders[role][holder] = struct{}{}
		return
	}
	delete(r.holders[role], holder)
}

func unauthorized(caller domain.Identity, roles []domain.Role) error {
	return fmt.Errorf("%w: %q requires one of %v", domain.ErrUnauthorized, caller, roles)
}
