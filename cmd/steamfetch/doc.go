// Command steamfetch is the CLI for the steamfetch daemon. It talks to the
// daemon's HTTP API to enqueue downloads, watch progress, answer Steam Guard
// prompts, and browse history and the installed library.
package main
