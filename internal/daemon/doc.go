// Package daemon coordinates the long-running services: the queue manager,
// the history store, the library scanner, and the HTTP API. It enforces
// single-instance execution with a file lock.
package daemon
