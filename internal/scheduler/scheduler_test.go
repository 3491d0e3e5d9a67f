package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeFailer struct {
	gotCutoff string
	gotReason string
	n         int
	err       error
}

func (f *fakeFailer) FailStaleRunning(olderThan string, reason string) (int, error) {
	f.gotCutoff = olderThan
	f.gotReason = reason
	return f.n, f.err
}

func TestSweepStaleJobsCutoff(t *testing.T) {
	failer := &fakeFailer{n: 3}
	s := New(failer, 30*time.Minute)

	s.sweepStaleJobs()

	assert.Equal(t, "30 minutes", failer.gotCutoff)
	assert.NotEmpty(t, failer.gotReason)
}

func TestSweepStaleJobsSurvivesStoreError(t *testing.T) {
	failer := &fakeFailer{err: errors.New("db down")}
	s := New(failer, 45*time.Minute)

	// Must not panic; the next tick retries.
	s.sweepStaleJobs()
	assert.Equal(t, "45 minutes", failer.gotCutoff)
}
