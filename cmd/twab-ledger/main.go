package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/config"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/engine"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/twab"
)

func main() {
	cmd, err := newRootCmd(os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not parse config options: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "could not run: %v\n", err)
		os.Exit(1)
	}
}

// cli holds the state shared by every command of a single invocation.
type cli struct {
	cfg config.Config
	out io.Writer
	at  uint32
	now uint32
}

func newRootCmd(out io.Writer) (*cobra.Command, error) {
	c := &cli{out: out}
	cmd := &cobra.Command{
		Use:           "twab-ledger",
		Short:         "Time weighted balance ledger of a prize savings pool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := c.cfg.SetValues(); err != nil {
				return err
			}
			return c.cfg.Validate()
		},
	}
	cmd.SetOut(out)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information and exit",
		Run: func(_ *cobra.Command, _ []string) {
			if config.CommitHash == "" {
				fmt.Fprintf(c.out, "twab-ledger dev\n")
			} else {
				// avoid printing the branch for the main branch
				// ( since that's what the end-user would typically have )
				// but keep it for internal build ( so that we'll know from which branch it
				// was built )
				branch := config.Branch
				if branch == "main" {
					branch = ""
				}
				fmt.Fprintf(c.out, "twab-ledger %s (%s) %s\n", config.Version, config.CommitHash, branch)
			}
		},
	}

	printConfigCmd := &cobra.Command{
		Use:   "print-config",
		Short: "Print the resolved configuration in the toml format",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			out, err := c.cfg.MarshalTOML()
			if err != nil {
				return err
			}
			_, err = c.out.Write(out)
			return err
		},
	}

	cmd.AddCommand(versionCmd, printConfigCmd)
	cmd.AddCommand(c.writeCommands()...)
	cmd.AddCommand(c.readCommands()...)
	cmd.AddCommand(
		recordCommand(c, engine.DrawsBufferName, "draws", "draw", (*engine.Engine).Draws),
		recordCommand(c, engine.PrizeDistributionsBufferName, "prize-distributions", "prize distribution", (*engine.Engine).PrizeDistributions),
	)

	if err := c.cfg.Init(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// withEngine opens the ledger database for the duration of fn. Read queries
// are answered as of --now when it is set.
func (c *cli) withEngine(fn func(e *engine.Engine) error) error {
	var clock twab.Clock
	if c.now != 0 {
		now := c.now
		clock = twab.ClockFunc(func() uint32 { return now })
	}
	e, err := engine.New(&c.cfg, clock)
	if err != nil {
		return err
	}
	err = fn(e)
	if closeErr := e.Close(); err == nil {
		err = closeErr
	}
	return err
}

// timestamp is the time of a write: --at, or the wall clock.
func (c *cli) timestamp() uint32 {
	if c.at != 0 {
		return c.at
	}
	return twab.SystemClock.Now()
}

func (c *cli) addAtFlag(flags *pflag.FlagSet) {
	flags.Uint32Var(&c.at, "at", 0, "unix timestamp of the change, the current time if unset")
}

func (c *cli) addNowFlag(flags *pflag.FlagSet) {
	flags.Uint32Var(&c.now, "now", 0, "unix timestamp queries are answered at, the current time if unset")
}
