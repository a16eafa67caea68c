package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/edgeupdate/agent/internal/agent"
	"github.com/edgeupdate/agent/internal/agent/config"
	"github.com/edgeupdate/agent/pkg/log"
	"github.com/edgeupdate/agent/pkg/version"
)

func main() {
	cmd := NewEdgeUpdateAgentCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewEdgeUpdateAgentCommand builds the root command: running it with no
// subcommand starts the long-lived agent loop.
func NewEdgeUpdateAgentCommand() *cobra.Command {
	o := &runOptions{configFile: config.DefaultConfigFile}

	cmd := &cobra.Command{
		Use:   "edgeupdate-agent",
		Short: "edgeupdate-agent applies deployments published by an edgeupdate deployment service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run()
		},
	}
	o.Bind(cmd.PersistentFlags())

	cmd.AddCommand(NewCmdVersion())
	cmd.AddCommand(NewCmdConfigCheck(o))
	return cmd
}

type runOptions struct {
	configFile string
}

func (o *runOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.configFile, "config", o.configFile, "Path to the agent's configuration file.")
}

func (o *runOptions) loadConfig(logger *log.PrefixLogger) (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger.Infof("loaded configuration from %s: %s", o.configFile, cfg.StringSanitized())
	return cfg, nil
}

func (o *runOptions) run() error {
	logger := log.NewPrefixLogger("")
	cfg, err := o.loadConfig(logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	agentInstance := agent.New(logger, cfg, o.configFile)
	if err := agentInstance.Run(ctx); err != nil {
		return fmt.Errorf("running device agent: %w", err)
	}
	return nil
}

// NewCmdVersion prints the build's version info.
func NewCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := version.Get()
			fmt.Printf("Agent Version: %s\n", v.String())
			fmt.Printf("Git Commit: %s\n", v.GitCommit)
			fmt.Printf("Build Date: %s\n", v.BuildDate)
			return nil
		},
	}
}

// NewCmdConfigCheck loads and validates the configuration file without
// starting the agent, for use in deployment tooling and service unit
// pre-start checks.
func NewCmdConfigCheck(o *runOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config-check",
		Short: "load and validate the agent configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewPrefixLogger("")
			cfg, err := o.loadConfig(logger)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Println("configuration OK")
			return nil
		},
	}
}
