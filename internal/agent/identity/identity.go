// Package identity defines the agent's identity provider collaborator
// (§6): the single external attribute the deployment service uses to
// address this device. The agent treats its value as opaque; how it is
// derived (serial number, MAC address, a provisioned UUID) is entirely
// up to the platform integration.
package identity

//go:generate mockgen -source=identity.go -destination=mock_identity.go -package=identity

import (
	"context"
	"encoding/json"
)

// Identity is the (name, value) pair a Provider returns: name is the
// attribute's key as recognized by the deployment service (e.g.
// "mac", "serial-number"), value is the device-specific string.
type Identity struct {
	Name  string
	Value string
}

// MarshalJSON encodes the identity as a single-key object keyed by its
// name, e.g. {"mac":"aa:bb:cc:dd:ee:ff"} — the wire shape the deployment
// service's id_data field expects, not a {"Name":...,"Value":...} struct
// dump.
func (id Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{id.Name: id.Value})
}

// Provider supplies the device's identity attribute. Implementations
// are expected to be cheap and side-effect free; the agent may call
// GetIdentity on every authentication attempt.
type Provider interface {
	GetIdentity(ctx context.Context) (Identity, error)
}
