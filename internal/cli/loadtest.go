package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vadiminshakov/tradeledger/internal/loadtest"
)

func newLoadtestCmd(rc *RootConfig) *cobra.Command {
	var cfg loadtest.Config
	cmd := &cobra.Command{
		Use:     "loadtest",
		Short:   "Open many subscribers against a serve process's price stream",
		Example: "  tradeledger loadtest --url http://localhost:8090/prices/stream --conns 2000 --dur 1m",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.RampUp == 0 {
				cfg.RampUp = loadtest.DefaultRampUp(cfg.Connections)
			}
			l, err := newLogger("info", rc.Dev)
			if err != nil {
				return err
			}
			defer l.Sync() //nolint:errcheck

			res, err := loadtest.Run(cmd.Context(), cfg, l)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), box("stream load",
				"connected", fmt.Sprint(res.Connected),
				"conn errs", fmt.Sprint(res.ConnectErrs),
				"dropped", fmt.Sprint(res.StreamErrs),
				"prices", fmt.Sprint(res.Prices),
				"elapsed", res.Elapsed.Truncate(time.Millisecond).String(),
				"prices/s", fmt.Sprintf("%.2f", res.PerSecond()),
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.URL, "url", "http://localhost:8090/prices/stream", "price stream endpoint")
	cmd.Flags().IntVar(&cfg.Connections, "conns", 1000, "concurrent subscribers")
	cmd.Flags().DurationVar(&cfg.Duration, "dur", time.Minute, "test duration, 0 runs until interrupted")
	cmd.Flags().DurationVar(&cfg.RampUp, "ramp", 0, "spread connection starts across this window")
	cmd.Flags().DurationVar(&cfg.ReportEvery, "report", 5*time.Second, "progress log interval")
	return cmd
}
