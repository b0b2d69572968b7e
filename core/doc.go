// Package core holds the shared vocabulary of the agentdesk orchestration
// pipeline: resolved caller identity, conversation messages, the tagged
// tool-outcome union, approval records and their status machine, working
// memory, handoff decisions and the error taxonomy. It has no dependencies on
// the higher layers so every package can speak these types without cycles.
package core
