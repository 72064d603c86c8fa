package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddJobValidation(t *testing.T) {
	svc, err := New()
	require.NoError(t, err)
	svc.Start()
	t.Cleanup(func() { _ = svc.Stop() })

	noop := func() {}

	_, err = svc.AddJob("", "*/5 * * * *", noop)
	assert.ErrorIs(t, err, ErrEmptyJobName)

	_, err = svc.AddJob("sweep", " ", noop)
	assert.ErrorIs(t, err, ErrEmptyCronExpr)

	_, err = svc.AddJob("sweep", "every five minutes", noop)
	assert.ErrorContains(t, err, "invalid cron expression")

	_, err = svc.AddJob("sweep", "61 * * * *", noop)
	assert.Error(t, err)

	job, err := svc.AddJob("sweep", "*/5 * * * *", noop)
	require.NoError(t, err)
	assert.Equal(t, "sweep", job.Name())

	_, err = svc.AddIntervalJob("tick", 0, noop)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = svc.AddIntervalJob("tick", time.Minute, noop)
	require.NoError(t, err)
	assert.Len(t, svc.Jobs(), 2)
}

func TestNilServiceIsNotInitialized(t *testing.T) {
	var svc *Service

	_, err := svc.AddJob("sweep", "*/5 * * * *", func() {})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, svc.Stop(), ErrNotInitialized)
	assert.Nil(t, svc.Jobs())
}

func TestStopIsIdempotent(t *testing.T) {
	svc, err := New()
	require.NoError(t, err)
	svc.Start()

	require.NoError(t, svc.Stop())
	require.NoError(t, svc.Stop())
}
