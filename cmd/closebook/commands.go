package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aneshas/closebook/app"
	"github.com/spf13/cobra"
)

// command-side subcommands - every one of them goes through the command
// handlers, which run catch-up first so the dispatch after the append only
// has the fresh events to fold

func newCommandCommands() []*cobra.Command {
	return []*cobra.Command{
		newRegisterCommand(),
		newUpdateCommand(),
		newDeleteCommand(),
		newSubmitCommand(),
		newRejectCommand(),
		newPostCommand(),
		newReverseCommand(),
		newCorrectCommand(),
		newCloseCommand(),
	}
}

// readLines decodes a json line array from the --lines flag value, or from
// the file it points to when prefixed with @
func readLines(arg string) ([]app.LineRequest, error) {
	data := []byte(arg)

	if len(arg) > 0 && arg[0] == '@' {
		var err error

		data, err = os.ReadFile(arg[1:])
		if err != nil {
			return nil, err
		}
	}

	var lines []app.LineRequest

	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("parsing lines: %w", err)
	}

	return lines, nil
}

func withEngine(run func(e *engine, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.projector.CatchUp(cmd.Context()); err != nil {
			return err
		}

		return run(e, cmd, args)
	}
}

func newRegisterCommand() *cobra.Command {
	var (
		voucher string
		date    string
		lines   string
		by      string
	)

	cmd := cobra.Command{
		Use:   "register",
		Short: "Register a new draft journal entry",
		Example: `  closebook register --voucher V-2026-042 --date 2026-08-29 \
    --lines '[{"no":1,"side":"debit","account":"7010","amount":10000,"currency":"EUR"},
              {"no":2,"side":"credit","account":"1910","amount":10000,"currency":"EUR"}]'`,
		RunE: withEngine(func(e *engine, cmd *cobra.Command, args []string) error {
			reqLines, err := readLines(lines)
			if err != nil {
				return err
			}

			res, err := e.handlers.RegisterEntry(cmd.Context(), app.RegisterEntryRequest{
				VoucherNo:       voucher,
				TransactionDate: date,
				Lines:           reqLines,
				RegisteredBy:    by,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.EntryID)

			return nil
		}),
	}

	cmd.Flags().StringVar(&voucher, "voucher", "", "voucher number")
	cmd.Flags().StringVar(&date, "date", "", "transaction date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&lines, "lines", "", "json line array, or @file")
	cmd.Flags().StringVar(&by, "by", "", "acting user")

	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("lines")

	return &cmd
}

func newUpdateCommand() *cobra.Command {
	var (
		lines string
		by    string
	)

	cmd := cobra.Command{
		Use:   "update <entry-id>",
		Short: "Replace a draft entry's lines",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(e *engine, cmd *cobra.Command, args []string) error {
			reqLines, err := readLines(lines)
			if err != nil {
				return err
			}

			_, err = e.handlers.UpdateDraft(cmd.Context(), app.UpdateDraftRequest{
				EntryID:   args[0],
				Lines:     reqLines,
				UpdatedBy: by,
			})

			return err
		}),
	}

	cmd.Flags().StringVar(&lines, "lines", "", "json line array, or @file")
	cmd.Flags().StringVar(&by, "by", "", "acting user")

	_ = cmd.MarkFlagRequired("lines")

	return &cmd
}

func newDeleteCommand() *cobra.Command {
	var by string

	cmd := cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete a draft entry",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(e *engine, cmd *cobra.Command, args []string) error {
			_, err := e.handlers.DeleteDraft(cmd.Context(), app.DeleteDraftRequest{
				EntryID:   args[0],
				DeletedBy: by,
			})

			return err
		}),
	}

	cmd.Flags().StringVar(&by, "by", "", "acting user")

	return &cmd
}

func newSubmitCommand() *cobra.Command {
	var by string

	cmd := cobra.Command{
		Use:   "submit <entry-id>",
		Short: "Submit a draft entry for approval",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(e *engine, cmd *cobra.Command, args []string) error {
			_, err := e.handlers.SubmitForApproval(cmd.Context(), app.SubmitForApprovalRequest{
				EntryID:     args[0],
				RequestedBy: by,
			})

			return err
		}),
	}

	cmd.Flags().StringVar(&by, "by", "", "acting user")

	return &cmd
}

func newRejectCommand() *cobra.Command {
	var (
		reason string
		by     string
	)

	cmd := cobra.Command{
		Use:   "reject <entry-id>",
		Short: "Reject a pending entry back to draft",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(e *engine, cmd *cobra.Command, args []string) error {
			_, err := e.handlers.RejectEntry(cmd.Context(), app.RejectEntryRequest{
				EntryID:    args[0],
				Reason:     reason,
				RejectedBy: by,
			})

			return err
		}),
	}

	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	cmd.Flags().StringVar(&by, "by", "", "acting user")

	return &cmd
}

func newPostCommand() *cobra.Command {
	var (
		entryNo string
		by      string
	)

	cmd := cobra.Command{
		Use:   "post <entry-id>",
		Short: "Post an entry into the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(e *engine, cmd *cobra.Command, args []string) error {
			res, err := e.handlers.PostEntry(cmd.Context(), app.PostEntryRequest{
				EntryID:  args[0],
				EntryNo:  entryNo,
				PostedBy: by,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "posted %s at version %d\n", res.EntryID, res.Version)

			return nil
		}),
	}

	cmd.Flags().StringVar(&entryNo, "entry-no", "", "assigned entry number")
	cmd.Flags().StringVar(&by, "by", "", "acting user")

	_ = cmd.MarkFlagRequired("entry-no")

	return &cmd
}

func newReverseCommand() *cobra.Command {
	var (
		voucher string
		date    string
		reason  string
		by      string
	)

	cmd := cobra.Command{
		Use:   "reverse <entry-id>",
		Short: "Reverse a posted entry with an offsetting entry",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(e *engine, cmd *cobra.Command, args []string) error {
			res, err := e.handlers.ReverseEntry(cmd.Context(), app.ReverseEntryRequest{
				EntryID:         args[0],
				VoucherNo:       voucher,
				TransactionDate: date,
				Reason:          reason,
				RequestedBy:     by,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.ReversalEntryID)

			return nil
		}),
	}

	cmd.Flags().StringVar(&voucher, "voucher", "", "voucher number of the reversal entry")
	cmd.Flags().StringVar(&date, "date", "", "transaction date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&reason, "reason", "", "reversal reason")
	cmd.Flags().StringVar(&by, "by", "", "acting user")

	_ = cmd.MarkFlagRequired("date")

	return &cmd
}

func newCorrectCommand() *cobra.Command {
	var (
		voucher string
		date    string
		lines   string
		reason  string
		by      string
	)

	cmd := cobra.Command{
		Use:   "correct <entry-id>",
		Short: "Correct a posted entry with a replacement entry",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(e *engine, cmd *cobra.Command, args []string) error {
			reqLines, err := readLines(lines)
			if err != nil {
				return err
			}

			res, err := e.handlers.CorrectEntry(cmd.Context(), app.CorrectEntryRequest{
				EntryID:         args[0],
				VoucherNo:       voucher,
				TransactionDate: date,
				Lines:           reqLines,
				Reason:          reason,
				RequestedBy:     by,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.ReplacementEntryID)

			return nil
		}),
	}

	cmd.Flags().StringVar(&voucher, "voucher", "", "voucher number of the replacement entry")
	cmd.Flags().StringVar(&date, "date", "", "transaction date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&lines, "lines", "", "corrected json line array, or @file")
	cmd.Flags().StringVar(&reason, "reason", "", "correction reason")
	cmd.Flags().StringVar(&by, "by", "", "acting user")

	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("lines")

	return &cmd
}

func newCloseCommand() *cobra.Command {
	var by string

	cmd := cobra.Command{
		Use:   "close <entry-id>",
		Short: "Lock a posted entry for the closed period",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(e *engine, cmd *cobra.Command, args []string) error {
			_, err := e.handlers.CloseEntry(cmd.Context(), app.CloseEntryRequest{
				EntryID:  args[0],
				ClosedBy: by,
			})

			return err
		}),
	}

	cmd.Flags().StringVar(&by, "by", "", "acting user")

	return &cmd
}
