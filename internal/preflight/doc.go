// Package preflight verifies the environment before downloads run: the
// SteamCMD installation, directory access, and free disk space.
//
// The queue manager consults Gate before every attempt so that jobs fail
// fast with a classified reason instead of launching a process that cannot
// succeed. RunAll produces the richer per-check report used by the
// diagnostics surfaces.
package preflight
