// Package vigil implements an always-on autonomous LLM agent.
//
// The core is an event-driven orchestration engine: a Scheduler drains a
// single event queue of heartbeat wake-ups and human messages, builds a
// system prompt from persistent workspace files, and runs a multi-turn
// LLM conversation through an Agent. Each turn's output is handled by a
// pluggable Orchestrator (heartbeat vs. human-input policy) that dispatches
// tool calls in parallel through a ToolRegistry. Shell and file tools run
// inside an isolated workspace via the Runtime abstraction (container or
// host).
//
// Subpackages provide the edges: provider/openaicompat (LLM HTTP client),
// toolbox (default tool handlers), frontend/telegram (chat platform
// adapter), api (HTTP ingress), store/sqlite and store/postgres (durable
// conversations), internal/config (settings), and observer (OTEL tracing).
package vigil
