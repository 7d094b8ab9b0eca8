// Package toolclient discovers tools on a remote tool provider and invokes them.
//
// Invoke never returns a bare error. Every call resolves to an Outcome tagged
// OK, ToolNotFound, ToolTransportError or ToolExecutionError, and a name that was
// not discovered is rejected without touching the network.
package toolclient
