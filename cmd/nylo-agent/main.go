package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
)

// Globals are the flags shared by every command.
type Globals struct {
	Domain     string `help:"Domain the agent acts for." env:"NYLO_DOMAIN" required:""`
	CustomerID int64  `name:"customer-id" help:"Customer the events belong to." env:"NYLO_CUSTOMER_ID"`
	Endpoint   string `help:"Tracking server base URL. Overrides NYLO_ENDPOINT."`
	StateFile  string `name:"state-file" help:"File that persists the identifier between runs." default:"${state_file}" type:"path"`
	SigningKey string `name:"signing-key" help:"HS256 key for signed handoff tokens." env:"NYLO_SIGNING_KEY"`
	LogLevel   string `name:"log-level" help:"Log level." enum:"debug,info,warn,error" default:"info"`

	In  io.Reader `kong:"-"`
	Out io.Writer `kong:"-"`
}

type CLI struct {
	Globals

	Identify IdentifyCmd `cmd:"" help:"Print the current identifier and session."`
	Send     SendCmd     `cmd:"" help:"Send newline delimited JSON events read from stdin."`
	Handoff  HandoffCmd  `cmd:"" help:"Decorate a cross-domain link with a handoff token."`
	Adopt    AdoptCmd    `cmd:"" help:"Consume a handoff token from a landing URL."`
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "nylo", "identifier")
}

func newParser(cli *CLI, exit func(int)) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("nylo-agent"),
		kong.Description("nylo tracking agent"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.UsageOnError(),
		kong.Vars{"state_file": defaultStateFile()},
		kong.Bind(&cli.Globals),
		kong.Exit(exit),
	)
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func run(args []string, in io.Reader, out io.Writer) error {
	cli := &CLI{}
	parser, err := newParser(cli, os.Exit)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cli.In = in
	cli.Out = out
	setupLogging(cli.LogLevel)
	return ctx.Run(&cli.Globals)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "nylo-agent:", err)
		os.Exit(1)
	}
}
