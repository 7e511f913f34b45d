package common_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/rssnews/cmd/common"
)

func TestIgnoreCanceled(t *testing.T) {
	t.Parallel()

	require.NoError(t, common.IgnoreCanceled(nil))
	require.NoError(t, common.IgnoreCanceled(context.Canceled))
	require.NoError(t, common.IgnoreCanceled(fmt.Errorf("requeue job: %w", context.Canceled)))

	dup := errors.New("duplicate document")
	assert.ErrorIs(t, common.IgnoreCanceled(dup), dup)
	assert.ErrorIs(t, common.IgnoreCanceled(context.DeadlineExceeded), context.DeadlineExceeded)
}
