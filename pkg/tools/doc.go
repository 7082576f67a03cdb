// Package tools defines the MCP tool catalogue and its dispatcher.
//
// Each tool declares a JSON schema, the permission it requires and a
// handler over the shared services. The registry runs the permission
// and space-scope checks before the handler, converts service errors
// into status envelopes and records metrics plus an audit line for
// every call, so handlers stay small decode-and-delegate functions.
package tools
