// Package workers contains the background workers that do the actual long
// running work: the transcriber and the generation job runner. Workers run
// under coordinator supervision and report results through the repositories
// and the bus; they never touch the durable store directly.
package workers
