// Package model defines the provider interface the orchestration pipeline
// drives: a normalized Request (system prompt, messages, tools, explicit tool
// choice), a cancellable streaming Response channel pair, and token Usage.
// Concrete adapters live in the openai and anthropic subpackages; a scripted
// deterministic model backs the tests.
package model
