package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"solidify/internal/client/api"
)

// options are shared by every subcommand through the persistent flags.
type options struct {
	serverURL string
}

func (o *options) client() *api.Client {
	tok, _ := loadToken()
	return api.New(o.serverURL, tok)
}

// withAuth runs call with the saved access token. A missing or rejected
// access token is replaced through the saved refresh token once before
// the user is asked to log in again. Rejected tokens never reach the ledger,
// so repeating call is safe.
func (o *options) withAuth(ctx context.Context, call func(*api.Client) error) error {
	tok, _ := loadToken()
	if tok == "" {
		if err := o.refresh(ctx); err != nil {
			return err
		}
		tok, _ = loadToken()
	}
	c := api.New(o.serverURL, tok)
	err := call(c)
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}
	if rerr := o.refresh(ctx); rerr != nil {
		return rerr
	}
	c.Token, _ = loadToken()
	return call(c)
}

func (o *options) refresh(ctx context.Context) error {
	rt, err := loadRefresh()
	if err != nil || rt == "" {
		return errNotLoggedIn
	}
	tok, err := api.New(o.serverURL, "").Refresh(ctx, rt)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return errNotLoggedIn
		}
		return err
	}
	return saveTokens(tok.AccessToken, tok.RefreshToken)
}

// runAuthed prints the result of an authenticated call as JSON.
func (o *options) runAuthed(cmd *cobra.Command, call func(*api.Client) (any, error)) error {
	var out any
	err := o.withAuth(cmd.Context(), func(c *api.Client) error {
		var err error
		out, err = call(c)
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func NewRootCmd(version, buildDate string) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "solidify",
		Short:         "Solidify record ledger CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultURL := "http://localhost:8080"
	if v := os.Getenv("SOLIDIFY_SERVER"); v != "" {
		defaultURL = v
	}
	root.PersistentFlags().StringVar(&opts.serverURL, "server", defaultURL, "Server base URL")

	root.AddCommand(newVersionCmd(version, buildDate, opts))
	root.AddCommand(newAuthCmd(opts))
	root.AddCommand(newRecordsCmd(opts))
	root.AddCommand(newRolesCmd(opts))
	return root
}
