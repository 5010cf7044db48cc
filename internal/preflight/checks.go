package preflight

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

// CheckSteamCmd verifies the launcher script exists and is executable.
func CheckSteamCmd(script string) Result {
	const name = "SteamCMD"
	info, err := os.Stat(script)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: not installed)", script)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", script, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", script)}
	}
	if err := unix.Access(script, unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not executable: %v)", script, err)}
	}
	return Result{Name: name, Passed: true, Detail: script}
}

// CheckBinary reports whether a required system binary is on PATH.
func CheckBinary(name, command string) Result {
	if _, err := exec.LookPath(command); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", command)}
	}
	return Result{Name: name, Passed: true, Detail: command}
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeDisk verifies the download volume has at least minFreeBytes
// available.
func CheckFreeDisk(path string, minFreeBytes uint64) Result {
	const name = "Free disk space"
	usage, err := disk.Usage(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	detail := fmt.Sprintf("%s free of %s (%.1f%% used)",
		humanize.IBytes(usage.Free), humanize.IBytes(usage.Total), usage.UsedPercent)
	if usage.Free < minFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %s", detail, humanize.IBytes(minFreeBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}
