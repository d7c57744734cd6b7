// Package encrypted is a persistence provider that encrypts the payloads of
// journaled events and blueprints before they reach another provider.
package encrypted

import (
	"context"

	"github.com/bakerykit/bakery/encryption"
	"github.com/bakerykit/bakery/persistence"
)

// Provider is an implementation of persistence.Provider that wraps another
// provider, encrypting payloads with an encryption.Policy.
//
// Only packet data is encrypted. Instance IDs, blueprint IDs, metadata and
// shard leases are stored as-is so that the journal remains queryable.
type Provider struct {
	// Provider is the provider that stores the encrypted journal.
	Provider persistence.Provider

	// Policy is the policy used to encrypt and decrypt payloads.
	Policy encryption.Policy
}

// Open returns the data-store for the journal with the given name.
func (p *Provider) Open(ctx context.Context, name string) (persistence.DataStore, error) {
	ds, err := p.Provider.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	return &DataStore{
		DataStore: ds,
		Policy:    p.Policy,
	}, nil
}
