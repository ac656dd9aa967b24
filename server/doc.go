// Package server exposes the assistant over HTTP: blocking and streaming
// chat endpoints, a bidirectional chat websocket, and the voice control
// surface. Event delivery preserves emission order; a client disconnect
// cancels the in-flight run cooperatively.
package server
