// Gray Logic Node - networked environmental controller.
//
// This is the main entry point for the node daemon. The node samples
// temperature, humidity and light, drives three switched loads (fan,
// light, air conditioning), joins a wireless network provisioned through
// its own access point, and exchanges telemetry and commands with an MQTT
// broker.
//
// Subcommands cover offline maintenance of the persisted settings:
//
//	graylogic-node                    run the node
//	graylogic-node forget-network     clear stored wireless credentials
//	graylogic-node factory-reset      erase all persisted settings
//	graylogic-node version            print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM so every component shuts down in order.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. Separated from main for testability.
func newApp() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   defaultConfigPath,
		Usage:   "path to the YAML configuration file",
		Sources: cli.NewValueSourceChain(cli.EnvVar("GRAYLOGIC_NODE_CONFIG")),
	}

	return &cli.Command{
		Name:    "graylogic-node",
		Usage:   "environmental controller node",
		Version: version,
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:    "panel-dir",
				Usage:   "serve the provisioning page from this directory instead of the embedded copy",
				Sources: cli.NewValueSourceChain(cli.EnvVar("GRAYLOGIC_NODE_PANEL_DIR")),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, options{
				configPath: c.String("config"),
				panelDir:   c.String("panel-dir"),
			})
		},
		Commands: []*cli.Command{
			{
				Name:  "forget-network",
				Usage: "clear stored wireless credentials; the node boots into provisioning",
				Action: func(ctx context.Context, c *cli.Command) error {
					return forgetNetwork(ctx, c.String("config"))
				},
			},
			{
				Name:  "factory-reset",
				Usage: "erase the persisted mode, publish interval and credentials",
				Action: func(ctx context.Context, c *cli.Command) error {
					return factoryReset(ctx, c.String("config"))
				},
			},
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(_ context.Context, c *cli.Command) error {
					_, err := fmt.Fprintf(c.Root().Writer, "graylogic-node %s (commit %s, built %s)\n", version, commit, date)
					return err
				},
			},
		},
	}
}
