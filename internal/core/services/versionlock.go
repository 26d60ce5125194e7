package services

import (
	"fmt"
	"sync"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// versionLocks serialises builds per embedding version id. Builds for
// different versions proceed concurrently.
type versionLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newVersionLocks() *versionLocks {
	return &versionLocks{held: make(map[string]struct{})}
}

// acquire claims the version or returns domain.ErrBuildInProgress.
func (l *versionLocks) acquire(evid string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[evid]; busy {
		return nil, fmt.Errorf("%w: %s", domain.ErrBuildInProgress, evid)
	}
	l.held[evid] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, evid)
			l.mu.Unlock()
		})
	}, nil
}
