package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"

	"github.com/sergueidmitriev/slm-chat/internal/api"
	"github.com/sergueidmitriev/slm-chat/internal/client"
)

const chatUsage = `Usage:
  slm-chat chat [--server <url>] [--language <code>] [--no-stream]

Flags:
  --server   string  Relay base URL (default http://localhost:3001)
  --language string  Language hint for responses (en, fr, es, de)
  --no-stream        Wait for the full response instead of streaming

Press Ctrl-C during a response to cancel it; Ctrl-C or Ctrl-D at the prompt
exits.`

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, chatUsage)
	}

	var serverURL, language string
	var noStream bool
	fs.StringVar(&serverURL, "server", "http://localhost:3001", "relay base URL")
	fs.StringVar(&language, "language", "", "language hint")
	fs.BoolVar(&noStream, "no-stream", false, "disable streaming")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse chat flags: %w", err)
	}

	cli, err := client.New(serverURL, nil)
	if err != nil {
		return err
	}

	if err := cli.WaitHealthy(ctx, 3); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	session := client.NewSession(cli)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("Connected to %s. Empty line or Ctrl-D to quit.\n", serverURL)

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			return nil
		}
		line.AppendHistory(input)

		req := api.ChatRequest{Message: input, Language: language}
		if err := runTurn(cli, session, req, noStream); err != nil {
			return err
		}
	}
}

// runTurn executes one request with its own interrupt scope, so Ctrl-C
// cancels the in-flight generation instead of the whole program.
func runTurn(cli *client.Client, session *client.Session, req api.ChatRequest, noStream bool) error {
	turnCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Print("model> ")

	var err error
	if noStream {
		var reply string
		reply, err = cli.SendMessage(turnCtx, req)
		if err == nil {
			fmt.Println(reply)
		}
	} else {
		err = session.Submit(turnCtx, req, func(chunk string) {
			fmt.Print(chunk)
		})
		if err == nil {
			fmt.Println()
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\n[request cancelled]")
			return nil
		}
		fmt.Printf("\n[error] %v\n", err)
	}
	return nil
}
