package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"solidify/internal/client/api"
	"solidify/internal/shared/models"
)

var errNotLoggedIn = errors.New("no access token, please run: solidify auth login")

func newAuthCmd(opts *options) *cobra.Command {
	var address string
	cmd := &cobra.Command{Use: "auth", Short: "Authentication commands"}
	cmd.PersistentFlags().StringVar(&address, "address", "", "Account address (prompted when empty)")

	cmd.AddCommand(&cobra.Command{
		Use:   "register",
		Short: "Create an account for an address (ADMIN only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, password, err := readCredentials(cmd, address)
			if err != nil {
				return err
			}
			var acct models.Account
			err = opts.withAuth(cmd.Context(), func(c *api.Client) error {
				var err error
				acct, err = c.Register(cmd.Context(), addr, password)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", acct.Address)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Login and store token",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, password, err := readCredentials(cmd, address)
			if err != nil {
				return err
			}
			tok, err := opts.client().Login(cmd.Context(), addr, password)
			if err != nil {
				return err
			}
			if err := saveTokens(tok.AccessToken, tok.RefreshToken); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in")
			return nil
		},
	})
	return cmd
}

func readCredentials(cmd *cobra.Command, address string) (string, string, error) {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	if address == "" {
		fmt.Fprint(out, "Address: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", "", err
		}
		address = strings.TrimSpace(line)
	}
	fmt.Fprint(out, "Password: ")
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pass, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		return address, string(pass), err
	}
	line, err := in.ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", err
	}
	return address, strings.TrimRight(line, "\r\n"), nil
}

func tokenPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".solidify_token")
}

func refreshPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".solidify_refresh")
}

func saveTokens(access, refresh string) error {
	if err := os.WriteFile(tokenPath(), []byte(access), 0600); err != nil {
		return err
	}
	return os.WriteFile(refreshPath(), []byte(refresh), 0600)
}

func loadToken() (string, error) { return readTrimmed(tokenPath()) }

func loadRefresh() (string, error) { return readTrimmed(refreshPath()) }

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
