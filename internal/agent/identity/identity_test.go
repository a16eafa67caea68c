package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityMarshalJSONIsSingleKeyObject(t *testing.T) {
	id := Identity{Name: "mac", Value: "aa:bb:cc:dd:ee:ff"}

	b, err := json.Marshal(id)
	require.NoError(t, err)
	require.JSONEq(t, `{"mac":"aa:bb:cc:dd:ee:ff"}`, string(b))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, map[string]string{"mac": "aa:bb:cc:dd:ee:ff"}, decoded)
}
