package identity

import (
	"context"
	"fmt"
)

// Static is a Provider that always returns the same identity. It is the
// default for devices whose identity is fixed at provisioning time and
// read from configuration rather than queried from hardware.
type Static struct {
	identity Identity
}

// NewStatic returns a Static provider for the given name/value pair.
// It errors eagerly if either is empty, since an empty identity would
// otherwise surface as a confusing 401 from the deployment service.
func NewStatic(name, value string) (*Static, error) {
	if name == "" || value == "" {
		return nil, fmt.Errorf("identity: name and value must both be non-empty")
	}
	return &Static{identity: Identity{Name: name, Value: value}}, nil
}

func (s *Static) GetIdentity(ctx context.Context) (Identity, error) {
	return s.identity, nil
}
