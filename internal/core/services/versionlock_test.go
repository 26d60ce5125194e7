package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

func TestVersionLocks_SameVersionRejected(t *testing.T) {
	l := newVersionLocks()

	release, err := l.acquire("m@r1#chunk_policy=v1#norm=l2#spec_control=x")
	require.NoError(t, err)

	_, err = l.acquire("m@r1#chunk_policy=v1#norm=l2#spec_control=x")
	assert.ErrorIs(t, err, domain.ErrBuildInProgress)

	release()
	release()

	again, err := l.acquire("m@r1#chunk_policy=v1#norm=l2#spec_control=x")
	require.NoError(t, err)
	again()
}

func TestVersionLocks_DifferentVersionsConcurrent(t *testing.T) {
	l := newVersionLocks()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release, err := l.acquire(string(rune('a' + i)))
			errs[i] = err
			if err == nil {
				defer release()
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}
