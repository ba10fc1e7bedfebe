package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jkaberg/dura-gas/internal/command"
	"github.com/jkaberg/dura-gas/internal/config"
	"github.com/jkaberg/dura-gas/internal/engine"
	"github.com/jkaberg/dura-gas/internal/sensors"
	"github.com/jkaberg/dura-gas/internal/tank"
)

// withMonitor loads the configuration and state, runs fn and closes the
// store. Subcommands log to stderr only when --verbose is set.
func withMonitor(cmd *cobra.Command, f *flags, fn func(ctx context.Context, cfg *config.Config, mon *tank.Monitor) error) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Verbose)
	logger.SetOutput(cmd.ErrOrStderr())
	if !cfg.Verbose {
		logger.SetLevel(logrus.WarnLevel)
	}

	mon, st, err := openMonitor(cmd.Context(), cfg, nil, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), config.StorageTimeout+config.StorageRetryMaxElapsed)
	defer cancel()
	return fn(ctx, cfg, mon)
}

// dispatchCmd builds a subcommand that applies one service call.
func dispatchCmd(f *flags, service string, payload func(args []string) ([]byte, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withMonitor(cmd, f, func(ctx context.Context, cfg *config.Config, mon *tank.Monitor) error {
			body, err := payload(args)
			if err != nil {
				return err
			}
			res, err := command.Dispatch(ctx, mon, service, body, cfg.Tank.CustomStrategyAmount)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			return nil
		})
	}
}

func rawArg(args []string) ([]byte, error) {
	return []byte(args[0]), nil
}

func printSummary(w io.Writer, res *engine.Result) {
	fmt.Fprintf(w, "Level: %.1f%% (%.1f L of %.1f L usable)\n",
		res.Tank.Level*100, res.Tank.Liters, res.Tank.UsableCapacity)
	if d := res.Projection.DaysRemaining; d != nil {
		fmt.Fprintf(w, "Days remaining: %.0f\n", *d)
	}
	if l := res.Projection.RecommendedLiters; l != nil {
		fmt.Fprintf(w, "Recommended refill (%s): %.1f L\n", res.Strategy.Current, *l)
	}
	for _, a := range res.Anomalies {
		fmt.Fprintf(w, "Warning: %s\n", a.Message)
	}
}

func newStatusCmd(f *flags) *cobra.Command {
	var entities bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Evaluate the tank once and print the result as JSON",
		Example: `  dura-gas status --config /etc/dura-gas.yaml
  dura-gas status --entities`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMonitor(cmd, f, func(ctx context.Context, cfg *config.Config, mon *tank.Monitor) error {
				res, err := mon.Evaluate(ctx)
				if err != nil {
					return err
				}

				var out []byte
				if entities {
					snap := &sensors.Snapshot{Timestamp: res.EvaluatedAt, Result: res, RefillInput: mon.State().RefillInput}
					raw, err := sensors.BuildState(snap, sensors.Entities(cfg.Tank.HasSolar))
					if err != nil {
						return err
					}
					var doc map[string]interface{}
					if err := json.Unmarshal(raw, &doc); err != nil {
						return err
					}
					out, err = json.MarshalIndent(doc, "", "  ")
					if err != nil {
						return err
					}
				} else {
					out, err = json.MarshalIndent(res, "", "  ")
					if err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&entities, "entities", false, "print the Home Assistant state document instead")
	return cmd
}

func newRefillCmd(f *flags) *cobra.Command {
	var (
		price float64
		date  string
	)

	cmd := &cobra.Command{
		Use:   "refill LITERS",
		Short: "Record a refill",
		Long: `Records a refill of LITERS at the given price (default: the current price)
and raises the tank level accordingly.`,
		Example: `  dura-gas refill 96 --price 10.88
  dura-gas refill 120 --date 2025-03-01`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = dispatchCmd(f, tank.ServiceRecordRefill, func(args []string) ([]byte, error) {
		liters, err := command.ParseNumber([]byte(args[0]), "liters")
		if err != nil {
			return nil, err
		}
		doc := map[string]interface{}{"liters": liters}
		if cmd.Flags().Changed("price") {
			doc["price_per_liter"] = price
		}
		if date != "" {
			doc["refill_date"] = date
		}
		return json.Marshal(doc)
	})
	cmd.Flags().Float64Var(&price, "price", 0, "price per liter paid")
	cmd.Flags().StringVar(&date, "date", "", "refill date (RFC 3339 or YYYY-MM-DD)")
	return cmd
}

func newLevelCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:     "level PERCENT",
		Short:   "Set the current tank level from the gauge reading",
		Example: `  dura-gas level 45`,
		Args:    cobra.ExactArgs(1),
		RunE:    dispatchCmd(f, tank.ServiceUpdateLevel, rawArg),
	}
}

func newPriceCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:     "price PRICE",
		Short:   "Set the current gas price per liter",
		Example: `  dura-gas price 11.25`,
		Args:    cobra.ExactArgs(1),
		RunE:    dispatchCmd(f, tank.ServiceUpdatePrice, rawArg),
	}
}

func newHeatingModeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:       "heating-mode MODE",
		Short:     "Set how hot water is produced",
		Example:   `  dura-gas heating-mode solar_gas_hybrid`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: heatingModeNames(),
		RunE:      dispatchCmd(f, tank.ServiceSetHeatingMode, rawArg),
	}
}

func heatingModeNames() []string {
	var out []string
	for _, m := range engine.HeatingModes() {
		out = append(out, string(m))
	}
	return out
}

func newStrategyCmd(f *flags) *cobra.Command {
	var amount float64

	cmd := &cobra.Command{
		Use:   "strategy NAME",
		Short: "Select the refill strategy",
		Example: `  dura-gas strategy level_60
  dura-gas strategy custom --amount 750`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: engine.StrategyNames(),
	}
	cmd.RunE = dispatchCmd(f, tank.ServiceSetStrategy, func(args []string) ([]byte, error) {
		doc := map[string]interface{}{"strategy": args[0]}
		if cmd.Flags().Changed("amount") {
			doc["custom_amount"] = amount
		}
		return json.Marshal(doc)
	})
	cmd.Flags().Float64Var(&amount, "amount", 0, "spend per refill for the custom strategy")
	return cmd
}
