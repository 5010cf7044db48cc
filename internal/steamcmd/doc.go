// Package steamcmd drives the SteamCMD binary as a child process and turns
// its line-oriented stdout protocol into structured events.
//
// The package has two halves: Parser, which classifies single output lines
// (progress, success, failure, interactive auth prompts) without ever
// rejecting unrecognized input, and Client, which builds the command line,
// streams output through a Parser, feeds credentials over stdin, and
// enforces the per-attempt timeout and graceful termination sequence.
//
// Neither half decides retry policy. Failures are classified with
// faults.Reason and reported upward; the queue manager owns the decision.
package steamcmd
