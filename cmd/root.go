package cmd

import (
	"context"
	"fmt"
	"strings"
)

const usage = `slm-chat relays a browser or terminal chat UI to a local Ollama server.

Usage:
  slm-chat serve [flags]
  slm-chat chat  [flags]

Commands:
  serve    Start the relay HTTP server
  chat     Open an interactive terminal chat against a running relay

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "chat":
		return runChat(ctx, args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}
