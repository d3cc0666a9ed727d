package errors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errHostDown = New("host down")

func Test_WrapAndTrace(t *testing.T) {
	assert.Nil(t, WrapAndTrace(nil))

	err := WrapAndTrace(errHostDown, "c309")
	require.Error(t, err)
	assert.True(t, Is(err, errHostDown))
	assert.Contains(t, err.Error(), "errors_test.go")
	assert.Contains(t, err.Error(), "c309")
	assert.True(t, strings.HasSuffix(err.Error(), "host down"))
}

func Test_ValidationError(t *testing.T) {
	err := NewValidationError("no hosts given")
	assert.True(t, IsValidationError(err))
	assert.True(t, IsValidationError(WrapAndTrace(err)))
	assert.False(t, IsValidationError(errHostDown))

	var verr ValidationError
	require.True(t, As(WrapAndTrace(err), &verr))
	assert.Equal(t, "no hosts given", verr.Message)
}

func Test_Wrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))

	err := Wrap(errHostDown, "resolve c307")
	assert.Equal(t, "resolve c307: host down", err.Error())
	assert.True(t, Is(err, errHostDown))
}

func Test_Join(t *testing.T) {
	errPrecondition := New("host facts not probed")
	err := WrapAndTrace(Join(errPrecondition, Errorf("unsupported os %q", "plan9")))

	assert.True(t, Is(err, errPrecondition))
	assert.Contains(t, err.Error(), `unsupported os "plan9"`)
	assert.Nil(t, Join(nil, nil))
}
