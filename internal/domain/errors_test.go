package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobError_Is(t *testing.T) {
	cause := context.Canceled
	err := fmt.Errorf("run item 2: %w", NewJobError(ErrorKindCancelled, "", cause))

	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrDownloadFailed))
	assert.Equal(t, ErrorKindCancelled, KindOf(err))
}

func TestJobError_Error(t *testing.T) {
	assert.Equal(t, "download failed", NewJobError(ErrorKindDownload, "", errors.New("x")).Error())
	assert.Equal(t, "invalid request: bad url", InputError("bad %s", "url").Error())
	assert.Equal(t, "internal error", NewJobError("bogus", "", nil).Public())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKindCancelled, KindOf(fmt.Errorf("wrapped: %w", ErrCancelled)))
	assert.Equal(t, ErrorKindArchive, KindOf(NewJobError(ErrorKindArchive, "", nil)))
}

func TestRunState_Next(t *testing.T) {
	s, err := RunNotStarted.Next(RunRunning)
	assert.NoError(t, err)
	assert.Equal(t, RunRunning, s)

	s, err = s.Next(RunSucceeded)
	assert.NoError(t, err)
	assert.True(t, s.IsTerminal())

	_, err = s.Next(RunRunning)
	assert.Error(t, err)
	_, err = RunFailed.Next(RunSucceeded)
	assert.Error(t, err)
	_, err = RunNotStarted.Next(RunSucceeded)
	assert.Error(t, err)
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0.0, ClampPercent(-3))
	assert.Equal(t, 100.0, ClampPercent(140))
	assert.Equal(t, 42.5, ClampPercent(42.5))
}
