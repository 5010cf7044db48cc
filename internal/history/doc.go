// Package history persists terminal job outcomes in SQLite so the record
// survives daemon restarts. The live queue itself is in-memory; on restart,
// in-flight jobs are lost and only their history remains.
//
// Rows never contain credential material: the queue strips secrets before a
// job snapshot can reach the recorder.
package history
