package main

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/engine"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/twab"
)

func (c *cli) writeCommands() []*cobra.Command {
	mintCmd := &cobra.Command{
		Use:   "mint <holder> <amount>",
		Short: "Credit amount to holder",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			holder, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				return e.Ledger().Mint(holder, amount, c.timestamp())
			})
		},
	}
	burnCmd := &cobra.Command{
		Use:   "burn <holder> <amount>",
		Short: "Debit amount from holder",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			holder, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				return e.Ledger().Burn(holder, amount, c.timestamp())
			})
		},
	}
	transferCmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move amount from one holder to another",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			from, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			to, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				return e.Ledger().Transfer(from, to, amount, c.timestamp())
			})
		},
	}
	recordBalanceCmd := &cobra.Command{
		Use:   "record-balance <holder> <balance>",
		Short: "Set the balance of holder",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			holder, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			balance, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				return e.Ledger().RecordBalanceChange(holder, balance, c.timestamp())
			})
		},
	}
	delegateCmd := &cobra.Command{
		Use:   "delegate <holder> <delegate>",
		Short: "Route the balance of holder to delegate, the zero address withdraws it",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			holder, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			delegate, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				return e.Ledger().SetDelegate(holder, delegate, c.timestamp())
			})
		},
	}
	ingestCmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Apply a stream of JSON balance events, one per line, \"-\" reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeIn()
			return c.withEngine(func(e *engine.Engine) error {
				stats, err := e.Ingest(cmd.Context(), in)
				fmt.Fprintf(c.out, "%d events ingested\n", stats.Events)
				return err
			})
		},
	}

	commands := []*cobra.Command{mintCmd, burnCmd, transferCmd, recordBalanceCmd, delegateCmd}
	for _, cmd := range commands {
		c.addAtFlag(cmd.Flags())
	}
	return append(commands, ingestCmd)
}

func (c *cli) readCommands() []*cobra.Command {
	delegateOfCmd := &cobra.Command{
		Use:   "delegate-of <holder>",
		Short: "Print the delegate of holder",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			holder, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				fmt.Fprintln(c.out, e.Ledger().DelegateOf(holder).Hex())
				return nil
			})
		},
	}
	balanceAtCmd := &cobra.Command{
		Use:   "balance-at <holder> <timestamp>...",
		Short: "Print the balance of holder at each timestamp",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			holder, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			timestamps, err := parseTimestamps(args[1:])
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				if len(timestamps) == 1 {
					return c.printAmounts(e.Ledger().BalanceAt(holder, timestamps[0]))
				}
				balances, err := e.Ledger().BalancesAt(holder, timestamps)
				if err != nil {
					return err
				}
				return c.printAmounts(balances...)
			})
		},
	}
	totalSupplyAtCmd := &cobra.Command{
		Use:   "total-supply-at <timestamp>...",
		Short: "Print the total supply at each timestamp",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			timestamps, err := parseTimestamps(args)
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				if len(timestamps) == 1 {
					return c.printAmounts(e.Ledger().TotalSupplyAt(timestamps[0]))
				}
				supplies, err := e.Ledger().TotalSuppliesAt(timestamps)
				if err != nil {
					return err
				}
				return c.printAmounts(supplies...)
			})
		},
	}
	averageBalanceCmd := &cobra.Command{
		Use:   "average-balance <holder> <start> <end> [<start> <end>]...",
		Short: "Print the average balance of holder over each window",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			holder, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			starts, ends, err := parseWindows(args[1:])
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				if len(starts) == 1 {
					average, err := e.Ledger().AverageBalanceBetween(holder, starts[0], ends[0])
					if err != nil {
						return err
					}
					return c.printAmounts(average)
				}
				averages, err := e.Ledger().AverageBalancesBetween(holder, starts, ends)
				if err != nil {
					return err
				}
				return c.printAmounts(averages...)
			})
		},
	}
	averageTotalSupplyCmd := &cobra.Command{
		Use:   "average-total-supply <start> <end> [<start> <end>]...",
		Short: "Print the average total supply over each window",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			starts, ends, err := parseWindows(args)
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				if len(starts) == 1 {
					average, err := e.Ledger().AverageTotalSupplyBetween(starts[0], ends[0])
					if err != nil {
						return err
					}
					return c.printAmounts(average)
				}
				averages, err := e.Ledger().AverageTotalSuppliesBetween(starts, ends)
				if err != nil {
					return err
				}
				return c.printAmounts(averages...)
			})
		},
	}
	observationsCmd := &cobra.Command{
		Use:   "observations <holder|total-supply>",
		Short: "Print the state and the retained observations of an account, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := twab.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			return c.withEngine(func(e *engine.Engine) error {
				state, observations := e.Ledger().Account(id)
				out := newAccountOutput(id, state, observations)
				if !id.IsTotalSupply() {
					out.Delegate = e.Ledger().DelegateOf(id.Address()).Hex()
				}
				return c.printJSON(out)
			})
		},
	}

	commands := []*cobra.Command{
		delegateOfCmd, balanceAtCmd, totalSupplyAtCmd, averageBalanceCmd, averageTotalSupplyCmd, observationsCmd,
	}
	for _, cmd := range commands {
		c.addNowFlag(cmd.Flags())
	}
	return commands
}

func (c *cli) printAmounts(amounts ...*uint256.Int) error {
	for _, amount := range amounts {
		if _, err := fmt.Fprintln(c.out, amount.Dec()); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) printJSON(v interface{}) error {
	encoder := json.NewEncoder(c.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

type observationOutput struct {
	Timestamp        uint32 `json:"timestamp"`
	CumulativeWeight string `json:"cumulativeWeight"`
}

type accountOutput struct {
	Account              string              `json:"account"`
	Delegate             string              `json:"delegate,omitempty"`
	Balance              string              `json:"balance"`
	DelegateBalance      string              `json:"delegateBalance"`
	NextObservationIndex uint32              `json:"nextObservationIndex"`
	Cardinality          uint32              `json:"cardinality"`
	Observations         []observationOutput `json:"observations"`
}

func newAccountOutput(id twab.AccountID, state twab.AccountState, observations []twab.Observation) accountOutput {
	out := accountOutput{
		Account:              id.String(),
		Balance:              state.Balance.Dec(),
		DelegateBalance:      state.DelegateBalance.Dec(),
		NextObservationIndex: state.NextObservationIndex,
		Cardinality:          state.Cardinality,
		Observations:         make([]observationOutput, 0, len(observations)),
	}
	for _, observation := range observations {
		out.Observations = append(out.Observations, observationOutput{
			Timestamp:        observation.Timestamp,
			CumulativeWeight: observation.CumulativeWeight.Dec(),
		})
	}
	return out
}
