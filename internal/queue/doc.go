// Package queue owns the download queue: job lifecycle, strict FIFO
// ordering, the exclusive download slot, and retry policy.
//
// All job mutation flows through the Manager's critical section. The
// SteamCMD driver and parser classify failures but never decide retry
// policy; that decision lives here alone.
package queue
