package dcaerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := Wrap(SlippageExceeded, "pool moved", fmt.Errorf("reverted"))
	assert.True(t, errors.Is(err, Of(SlippageExceeded)))
	assert.False(t, errors.Is(err, Of(DeadlineExpired)))
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(New(NotFound, "order missing"))
	assert.True(t, ok)
	assert.Equal(t, NotFound, kind)

	_, ok = KindOf(fmt.Errorf("plain error"))
	assert.False(t, ok)
}

func TestError_UnwrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("rpc down")
	err := Wrap(UpstreamError, "read_contract failed", cause)
	assert.ErrorIs(t, err, cause)
}
