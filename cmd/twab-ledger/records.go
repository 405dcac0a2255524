package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/engine"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/recordbuffer"
)

type recordOutput[T any] struct {
	ID     uint32 `json:"id"`
	Record T      `json:"record"`
}

// recordCommand builds the push and query commands of a record buffer.
func recordCommand[T any](c *cli, name, use, noun string, buffer func(*engine.Engine) *recordbuffer.Buffer[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Push and query the %s buffer", name),
	}

	var caller string
	pushCmd := &cobra.Command{
		Use:   "push <id> <json|->",
		Short: fmt.Sprintf("Push a %s, \"-\" reads it from stdin", noun),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			callerAddress := c.cfg.Publisher
			if caller != "" {
				if callerAddress, err = parseAddress(caller); err != nil {
					return err
				}
			}
			var raw []byte
			if args[1] == "-" {
				if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return err
				}
			} else {
				raw = []byte(args[1])
			}
			var record T
			if err := json.Unmarshal(raw, &record); err != nil {
				return fmt.Errorf("could not decode %s: %v", noun, err)
			}
			return c.withEngine(func(e *engine.Engine) error {
				return buffer(e).Push(callerAddress, ids[0], record)
			})
		},
	}
	pushCmd.Flags().StringVar(&caller, "caller", "", "address pushing the record, the configured publisher if unset")

	getCmd := &cobra.Command{
		Use:   "get <id>...",
		Short: fmt.Sprintf("Print the %s records with the given ids", noun),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				if len(ids) == 1 {
					record, err := buffer(e).Get(ids[0])
					if err != nil {
						return err
					}
					return c.printJSON(recordOutput[T]{ID: ids[0], Record: record})
				}
				records, err := buffer(e).GetRange(ids)
				if err != nil {
					return err
				}
				out := make([]recordOutput[T], 0, len(records))
				for i, record := range records {
					out = append(out, recordOutput[T]{ID: ids[i], Record: record})
				}
				return c.printJSON(out)
			})
		},
	}
	oldestCmd := &cobra.Command{
		Use:   "oldest",
		Short: fmt.Sprintf("Print the oldest retained %s", noun),
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withEngine(func(e *engine.Engine) error {
				entry, err := buffer(e).GetOldest()
				if err != nil {
					return err
				}
				return c.printJSON(recordOutput[T]{ID: entry.ID, Record: entry.Record})
			})
		},
	}
	newestCmd := &cobra.Command{
		Use:   "newest",
		Short: fmt.Sprintf("Print the newest %s", noun),
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withEngine(func(e *engine.Engine) error {
				entry, err := buffer(e).GetNewest()
				if err != nil {
					return err
				}
				return c.printJSON(recordOutput[T]{ID: entry.ID, Record: entry.Record})
			})
		},
	}
	countCmd := &cobra.Command{
		Use:   "count",
		Short: fmt.Sprintf("Print the number of retained %s records", noun),
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withEngine(func(e *engine.Engine) error {
				_, err := fmt.Fprintln(c.out, buffer(e).Count())
				return err
			})
		},
	}

	cmd.AddCommand(pushCmd, getCmd, oldestCmd, newestCmd, countCmd)
	return cmd
}

// openInput opens name for reading, "-" being stdin.
func openInput(cmd *cobra.Command, name string) (io.Reader, func(), error) {
	if name == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
