/*
Package client provides a typed Go client for a Live Memory server.

It rides the same MCP transport agents use: one SSE session per Client
carrying JSON-RPC replies, tool calls POSTed to the session's message
URL. Every tool in the catalogue has a corresponding method returning
the tool's result struct from pkg/types.

# Usage

	c, err := client.New(ctx, "http://127.0.0.1:8002", token)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.SpaceCreate(ctx, "proj-alpha", "Sprint board", ""); err != nil {
		return err
	}

	note, err := c.LiveNote(ctx, "proj-alpha", "API contract agreed",
		client.NoteOptions{Category: "decision"})
	if err != nil {
		return err
	}
	fmt.Println(note.Filename)

# Error model

Methods return an error for transport and authorization failures.
Outcomes the server reports as data, such as a missing space or a busy
consolidation lock, arrive as a non-ok Status in the result's envelope
with Message explaining why. Callers deciding on outcome should switch
on result.Status rather than the error.

# Escape hatch

CallTool sends any tool by name with raw map arguments and returns the
decoded reply, for tools added to the server before this client learns
about them.
*/
package client
