// Package faults defines the closed failure taxonomy shared by the queue
// manager, the SteamCMD driver, and the HTTP API.
//
// Every failure surfaced to a job's error log carries one of the Reason
// constants. The queue manager alone decides whether a reason leads to a
// retry; other components only classify and report.
package faults
