// Package agent implements the conversational loop that coordinates model
// completions, tool execution and memory persistence, exposing progress as an
// ordered stream of typed events.
package agent
