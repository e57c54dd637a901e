package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/tastythames/credcheck/internal/batch"
	"github.com/tastythames/credcheck/internal/config"
	"github.com/tastythames/credcheck/internal/log"
	"github.com/tastythames/credcheck/internal/validator"
)

var (
	v   = config.New()
	cfg config.Config

	flagConfigFile string
	flagEnvFile    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("credcheck failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "credcheck",
		Short: "Validate stored mail and ssh credentials in parallel batches",
		Long: `credcheck logs into every stored target with its credentials and reports
one result per target to the owner that started the batch.

Configuration is read from flags, CREDCHECK_* environment variables,
an optional YAML file (--config) and an optional .env file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initCredcheck,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfigFile, "config", "", "YAML config file")
	pf.StringVar(&flagEnvFile, "env-file", "", "dotenv file to load (default .env when present)")
	pf.Bool("verbose", false, "verbose logging")
	pf.String("log-format", "json", "log format: json or text")
	pf.String("database", "credcheck.db", "sqlite database holding the targets")
	pf.String("inventory", "", "YAML inventory file; replaces the database as target source")
	pf.String("protocol", "smtp", "protocol to validate: smtp or ssh")
	pf.Duration("timeout", validator.DefaultTimeout, "per-target timeout")
	pf.Int("max-workers", batch.DefaultMaxWorkers, "workers per batch")
	pf.Int("global-limit", 0, "validations in flight across all batches, 0 for no limit")
	pf.Bool("smtp-allow-plain", false, "allow SMTP AUTH without STARTTLS")
	pf.String("known-hosts", "", "OpenSSH known_hosts file; host keys are not checked when empty")
	bind(pf.Lookup("verbose"), config.KeyVerbose)
	bind(pf.Lookup("log-format"), config.KeyLogFormat)
	bind(pf.Lookup("database"), config.KeyDatabase)
	bind(pf.Lookup("inventory"), config.KeyInventory)
	bind(pf.Lookup("protocol"), config.KeyProtocol)
	bind(pf.Lookup("timeout"), config.KeyTimeout)
	bind(pf.Lookup("max-workers"), config.KeyMaxWorkers)
	bind(pf.Lookup("global-limit"), config.KeyGlobalLimit)
	bind(pf.Lookup("smtp-allow-plain"), config.KeySMTPAllowPlain)
	bind(pf.Lookup("known-hosts"), config.KeyKnownHosts)

	root.AddCommand(newServeCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newTargetsCmd())
	root.AddCommand(versionCmd)
	return root
}

func initCredcheck(cmd *cobra.Command, _ []string) error {
	config.LoadEnvFile(slog.Default(), flagEnvFile)
	if err := config.ReadFile(v, flagConfigFile); err != nil {
		return err
	}
	var err error
	cfg, err = config.Load(v)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(log.New(cfg.Verbose, cfg.LogFormat))
	slog.DebugContext(cmd.Context(), "configuration loaded",
		"config", v.ConfigFileUsed(),
		"protocol", cfg.Protocol,
		"database", cfg.Database,
		"inventory", cfg.Inventory,
	)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Fprintln(out, "credcheck: version info not available")
			return
		}
		fmt.Fprintf(out, "credcheck: %s\n", info.Main.Version)
		fmt.Fprintf(out, "go:        %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Fprintf(out, "commit:    %s\n", s.Value)
			case "vcs.time":
				fmt.Fprintf(out, "date:      %s\n", s.Value)
			}
		}
	},
}
