// Package memory defines the long-term memory collaborator contract used by
// the context assembler, plus a process-local implementation for tests and
// single-node deployments.
package memory
