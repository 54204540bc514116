package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pricewatch/internal/aggregate"
	"github.com/sells-group/pricewatch/internal/model"
)

var statsCmd = &cobra.Command{
	Use:   "stats <date>...",
	Short: "Recompute chain aggregates for dates",
	Long:  "Recomputes chain price aggregates and chain stats for each YYYY-MM-DD date. Safe to repeat.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dates, err := parseDates(args)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		agg := aggregate.New(st)
		for _, d := range dates {
			res, err := agg.Run(ctx, d)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s: %d chain prices, %d chain stats\n",
				d.Format(model.DateLayout), res.ChainPrices, res.ChainStats)
		}
		return nil
	},
}

func parseDates(args []string) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(args))
	for _, a := range args {
		d, err := model.ParseDate(a)
		if err != nil {
			return nil, eris.Errorf("invalid date %q, want YYYY-MM-DD", a)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
