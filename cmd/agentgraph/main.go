// Command agentgraph runs agents described by a YAML configuration file.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/hupe1980/agentgraph/config"
)

var version = "dev"

// CLI defines the command-line interface.
type CLI struct {
	EnvFile []string `name:"env-file" help:"Dotenv files to load before reading the config (default .env.local, .env)"`

	Run      RunCmd      `cmd:"" help:"Run an agent once and print its result"`
	Serve    ServeCmd    `cmd:"" help:"Serve an agent over A2A with Prometheus metrics"`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentgraph"),
		kong.Description("Run graph-based LLM agents from a configuration file"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := config.LoadEnvFiles(cli.EnvFile...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env files: %v\n", err)
		os.Exit(1)
	}

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
