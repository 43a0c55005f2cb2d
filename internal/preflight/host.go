package preflight

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/constellation-sdi/constellation/internal/ui"
)

const (
	// MinDiskSpaceBytes is the free space an index directory needs.
	MinDiskSpaceBytes = 100 * 1024 * 1024

	// MinFileDescriptors is the descriptor limit below which nothing starts.
	MinFileDescriptors = 1024

	// descriptorsPerIndex covers the segment files a bleve index keeps open
	// plus its shadow build during a rebuild.
	descriptorsPerIndex = 256
)

// CheckDiskSpace checks the free space of the file system holding dir.
func (c *Checker) CheckDiskSpace(dir string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true, Details: dir}

	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	free := st.Bavail * uint64(st.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)",
		ui.FormatBytes(int64(free)), ui.FormatBytes(MinDiskSpaceBytes))
	if free < MinDiskSpaceBytes {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// RequiredFileDescriptors is the descriptor limit for serving indexes
// catalog indexes at once.
func RequiredFileDescriptors(indexes int) uint64 {
	need := uint64(indexes) * descriptorsPerIndex
	if need < MinFileDescriptors {
		return MinFileDescriptors
	}
	return need
}

// CheckFileDescriptors checks the soft descriptor limit against the number
// of catalog indexes. Only a limit under MinFileDescriptors is critical.
func (c *Checker) CheckFileDescriptors(indexes int) CheckResult {
	result := CheckResult{Name: "file_descriptors", Required: true}

	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	need := RequiredFileDescriptors(indexes)
	result.Message = fmt.Sprintf("%d (minimum: %d)", lim.Cur, need)
	switch {
	case lim.Cur < MinFileDescriptors:
		result.Status = StatusFail
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' to increase the limit", need)
	case lim.Cur < need:
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("%d catalog indexes may exhaust the limit; run 'ulimit -n %d'", indexes, need)
	default:
		result.Status = StatusPass
	}
	return result
}
