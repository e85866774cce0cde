// Command mcp speaks MCP over stdio, exposing trust scores and preflight
// decisions as tools an LLM agent can call. It is a thin client of the
// trustline HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/trustline/internal/mcpserver"
)

func main() {
	apiKey := os.Getenv("TRUSTLINE_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "TRUSTLINE_API_KEY is required")
		os.Exit(1)
	}

	apiURL := os.Getenv("TRUSTLINE_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	s := mcpserver.NewMCPServer(mcpserver.Config{APIURL: apiURL, APIKey: apiKey})
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
