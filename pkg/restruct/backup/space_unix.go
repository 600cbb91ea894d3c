//go:build unix

package backup

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// spaceSlack is extra headroom required beyond the shadow size, so a
// shadow never consumes the last bytes of the volume.
const spaceSlack = 4 * 1024 * 1024

// checkSpace verifies the filesystem holding dir has room for a shadow of
// need bytes.
func checkSpace(dir string, need int64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		// Statfs failing is not itself a reason to refuse the backup.
		return nil
	}

	avail := int64(st.Bavail) * int64(st.Bsize)
	if avail < need+spaceSlack {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientSpace, need, avail)
	}
	return nil
}
