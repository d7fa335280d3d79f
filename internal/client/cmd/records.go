package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"solidify/internal/client/api"
)

func newRecordsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "records", Short: "Manage ledger records"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <id> <content>",
			Short: "Create a record",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.runAuthed(cmd, func(c *api.Client) (any, error) {
					return c.Create(cmd.Context(), id, args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show a record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				rec, err := opts.client().Retrieve(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			},
		},
		&cobra.Command{
			Use:   "update <id> <content>",
			Short: "Replace the content of a record",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.runAuthed(cmd, func(c *api.Client) (any, error) {
					return c.Update(cmd.Context(), id, args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "erase <id>",
			Short: "Erase a record permanently",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.runAuthed(cmd, func(c *api.Client) (any, error) {
					return c.Erase(cmd.Context(), id)
				})
			},
		},
		&cobra.Command{
			Use:   "issue-nft <id> <holder>",
			Short: "Issue the NFT of a record to holder",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.runAuthed(cmd, func(c *api.Client) (any, error) {
					return c.IssueNFT(cmd.Context(), id, args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "nft <id>",
			Short: "Show the NFT binding of a record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				b, err := opts.client().Binding(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), b)
			},
		},
		&cobra.Command{
			Use:   "events <id>",
			Short: "Show the history of a record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				events, err := opts.client().RecordEvents(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), events)
			},
		},
	)
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
