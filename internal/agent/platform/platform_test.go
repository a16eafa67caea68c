package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopHooksNeverFail(t *testing.T) {
	var h NoopHooks
	ctx := context.Background()

	assert.NoError(t, h.NetworkConnect(ctx))
	h.NetworkRelease(ctx)
	assert.NoError(t, h.Restart(ctx))
	assert.NoError(t, h.DeploymentStatus(ctx, "d1", "success"))
	h.AuthenticationSuccess(ctx)
	h.AuthenticationFailure(ctx, errors.New("boom"))
}
