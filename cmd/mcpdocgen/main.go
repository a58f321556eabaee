// Command mcpdocgen prints the Markdown tool catalogue kept in README.md.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/toolhub/agenttools/internal/mcp"
)

func main() {
	render(os.Stdout, mcp.ToolDefinitions())
}

func render(w io.Writer, defs []mcp.Definition) {
	fmt.Fprintln(w, "## MCP Tools")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Generated by `go run ./cmd/mcpdocgen` from `internal/mcp/tools.go`.")
	fmt.Fprintln(w)

	var group string
	for _, d := range defs {
		if string(d.Group) != group {
			group = string(d.Group)
			fmt.Fprintf(w, "### %s\n\n", group)
		}
		fmt.Fprintf(w, "- `%s`\n", d.Tool.Name)
		if d.Tool.Description != "" {
			fmt.Fprintf(w, "  - Description: %s\n", d.Tool.Description)
		}

		required := make(map[string]bool, len(d.Tool.InputSchema.Required))
		for _, r := range d.Tool.InputSchema.Required {
			required[r] = true
		}
		keys := make([]string, 0, len(d.Tool.InputSchema.Properties))
		for k := range d.Tool.InputSchema.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if len(keys) > 0 {
			fmt.Fprintln(w, "  - Input:")
			for _, k := range keys {
				req := "optional"
				if required[k] {
					req = "required"
				}
				typ := ""
				if prop, ok := d.Tool.InputSchema.Properties[k].(map[string]any); ok {
					typ, _ = prop["type"].(string)
				}
				fmt.Fprintf(w, "    - `%s` %s (%s)\n", k, typ, req)
			}
		}
		fmt.Fprintln(w)
	}
}
