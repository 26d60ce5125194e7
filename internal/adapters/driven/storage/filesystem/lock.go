package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

const lockSuffix = ".lock"

// acquireLock creates path exclusively and records the holder in it.
// The file outlives a crashed process and must then be removed by hand.
func acquireLock(path, runID string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			holder, _ := os.ReadFile(path)
			return fmt.Errorf("%w: %s held by %q (remove it if no build is running)",
				domain.ErrBuildInProgress, path, strings.TrimSpace(string(holder)))
		}
		return fmt.Errorf("creating build lock: %w", err)
	}
	_, werr := fmt.Fprintf(f, "run=%s pid=%d\n", runID, os.Getpid())
	if err := errors.Join(werr, f.Close()); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("writing build lock: %w", err)
	}
	return nil
}

// releaseLock removes a lock file. A missing file is not an error.
func releaseLock(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("releasing build lock: %w", err)
	}
	return nil
}
