package ledger

import "github.com/cipherstack/genemarket/crypto"

// accessRegistry owns the administrator identity, the provider set and the
// pause flag. It is mutated only under the owning Ledger's lock.
type accessRegistry struct {
	admin     crypto.PublicKey
	providers map[string]bool
	paused    bool
}

func newAccessRegistry(admin crypto.PublicKey) *accessRegistry {
	return &accessRegistry{
		admin:     crypto.NewPublicKeyFromBytes(admin),
		providers: make(map[string]bool),
	}
}

func (a *accessRegistry) isAdmin(id crypto.PublicKey) bool {
	return a.admin.Equal(id)
}

func (a *accessRegistry) isProvider(id crypto.PublicKey) bool {
	return a.providers[id.String()]
}

func (a *accessRegistry) requireAdmin(id crypto.PublicKey) error {
	if !a.isAdmin(id) {
		return ErrNotAdmin
	}
	return nil
}

func (a *accessRegistry) requireProvider(id crypto.PublicKey) error {
	if !a.isProvider(id) {
		return ErrNotProvider
	}
	return nil
}

func (a *accessRegistry) requireUnpaused() error {
	if a.paused {
		return ErrPaused
	}
	return nil
}

// addProvider flags id as authorized. Returns false if it already was.
func (a *accessRegistry) addProvider(id crypto.PublicKey) bool {
	key := id.String()
	if a.providers[key] {
		return false
	}
	a.providers[key] = true
	return true
}

// removeProvider clears the flag. Returns false if id was not a provider.
func (a *accessRegistry) removeProvider(id crypto.PublicKey) bool {
	key := id.String()
	if !a.providers[key] {
		return false
	}
	delete(a.providers, key)
	return true
}
