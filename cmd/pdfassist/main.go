// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command pdfassist indexes PDFs and answers questions about them.
//
// Usage:
//
//	pdfassist index https://example.com/recipes.pdf
//	pdfassist ask "How do I make pad thai?"
//	pdfassist chat --new
//	pdfassist serve --watch
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/pdfassist"
)

// CLI defines the command-line interface.
type CLI struct {
	Index    IndexCmd    `cmd:"" help:"Add a PDF to the knowledge base."`
	Ask      AskCmd      `cmd:"" help:"Ask a single question."`
	Chat     ChatCmd     `cmd:"" help:"Start an interactive chat."`
	Serve    ServeCmd    `cmd:"" help:"Start the web UI and JSON API."`
	Reload   ReloadCmd   `cmd:"" help:"Reload every configured PDF."`
	MCP      MCPCmd      `cmd:"" name:"mcp" help:"Serve the assistant as MCP tools over stdio."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Print the JSON Schema of the configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file (default: pdfassist.yaml if present)." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(pdfassist.GetVersion())
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("pdfassist"),
		kong.Description("Ask questions about your PDFs."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
