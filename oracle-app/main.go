package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/stakebridge/relay-oracle/log"
	"github.com/stakebridge/relay-oracle/oracle-app/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "relay-oracle",
		Short: "Relay Oracle",
		Long:  "A staking oracle daemon bridging a relay chain and a parachain OracleMaster contract.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

func main() {
	rootCmd.AddCommand(versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := log.New(cfg.LogLevelStdout, false)

	logger.Info().
		Str("version", Version).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	logger.Info().
		Strs("relay_urls", cfg.WSURLRelay).
		Strs("para_urls", cfg.WSURLPara).
		Str("contract", cfg.ContractAddress).
		Str("oracle_mode", cfg.OracleMode).
		Str("type_registry_preset", cfg.TypeRegistryPreset).
		Msg("Configuration loaded")

	app, err := NewApp(cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return app.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Printf("Relay Oracle\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
