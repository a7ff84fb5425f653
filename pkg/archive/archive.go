// Package archive wraps and unwraps gzip-compressed receiver log files
// using the teacher's own archive dependency, mholt/archiver/v3. Real-time
// acquisition and a background compression daemon are out of scope
// (spec.md §1 Non-goals); this package is the orchestrator's "decompress on
// entry, best-effort recompress on exit" glue (spec.md §5).
package archive

import (
	"fmt"
	"os"
	"strings"

	"github.com/mholt/archiver/v3"
)

// IsGzipped reports whether path looks like a gzip-wrapped file by name.
func IsGzipped(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// Unwrap decompresses a ".gz" receiver log to a sibling file with the
// suffix stripped, returning the path to the decompressed file. If path is
// not gzipped, it is returned unchanged and nothing is written.
func Unwrap(path string) (string, error) {
	if !IsGzipped(path) {
		return path, nil
	}
	dst := strings.TrimSuffix(path, ".gz")
	gz := archiver.Gz{}
	if err := gz.Unarchive(path, dst); err != nil {
		return "", fmt.Errorf("archive: unwrapping %s: %w", path, err)
	}
	return dst, nil
}

// Rewrap best-effort recompresses path back to path+".gz", removing the
// uncompressed file on success. Errors are returned but are not fatal to
// the caller's run — the orchestrator logs and continues (spec.md §5).
func Rewrap(path string) error {
	dst := path + ".gz"
	gz := archiver.Gz{}
	if err := gz.Archive([]string{path}, dst); err != nil {
		return fmt.Errorf("archive: rewrapping %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("archive: removing uncompressed %s after rewrap: %w", path, err)
	}
	return nil
}
