package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"solidify/internal/server/app"
	"solidify/internal/server/config"
	"solidify/internal/shared/passhash"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "solidify-server",
		Short:         "Solidify record ledger server",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := app.NewLogger(os.Stdout, cfg.LogLevel)
			application, err := app.New(version, buildDate, cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to init server")
				return err
			}
			return application.Run()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults to $SOLIDIFY_CONFIG)")
	cmd.AddCommand(newHashPasswordCmd())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "solidify-server:", err)
		os.Exit(1)
	}
}

// newHashPasswordCmd prints the adminPasswordHash value for a password read
// from the terminal or stdin.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for the adminPasswordHash setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var password string
			if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				b, err := term.ReadPassword(int(f.Fd()))
				fmt.Fprintln(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = string(b)
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := passhash.Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
