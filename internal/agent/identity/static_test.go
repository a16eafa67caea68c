package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStaticRejectsEmptyFields(t *testing.T) {
	_, err := NewStatic("", "aa:bb:cc")
	require.Error(t, err)

	_, err = NewStatic("mac", "")
	require.Error(t, err)
}

func TestStaticGetIdentity(t *testing.T) {
	p, err := NewStatic("mac", "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	id, err := p.GetIdentity(context.Background())
	require.NoError(t, err)
	require.Equal(t, Identity{Name: "mac", Value: "aa:bb:cc:dd:ee:ff"}, id)
}
