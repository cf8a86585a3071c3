// Package results holds the read-through result repositories: an in-memory
// fast tier in front of a durable record store. Cache clears never touch
// durable data, and every durable write updates the memory tier so a save
// followed by a get is always consistent within the process.
package results
