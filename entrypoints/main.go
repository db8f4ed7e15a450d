package main

import (
	"github.com/Laisky/searxng-mcp/cmd"
)

func main() {
	cmd.Execute()
}
