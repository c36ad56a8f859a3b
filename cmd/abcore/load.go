package main

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/lca"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
)

// loadSummary is what `abcore load` prints.
type loadSummary struct {
	Project   string                `json:"project"`
	Databases []string              `json:"databases"`
	Rows      int                   `json:"rows"`
	Primary   string                `json:"primary"`
	Secondary string                `json:"secondary"`
	Timings   []metrics.TimingStats `json:"timings"`
	Caches    []metrics.CacheStats  `json:"caches"`
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the project metadata mirror and print a summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openHeadless(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		s := loadSummary{
			Project:   a.manager.Current().Name,
			Databases: a.core.Store.Databases(),
			Rows:      a.core.Store.Len(),
			Primary:   a.core.Store.PrimaryStatus().String(),
			Secondary: a.core.Store.SecondaryStatus().String(),
			Timings:   metrics.AllTimingStats(),
		}
		for _, c := range metrics.AllCacheMetrics() {
			s.Caches = append(s.Caches, c.Stats())
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	},
}

var calcCmd = &cobra.Command{
	Use:   "calc <setup>",
	Short: "Run a calculation setup and print the score grid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openHeadless(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		var res *lca.Results
		conn := a.calculate.Done().Connect(func(r *lca.Results) { res = r })
		defer conn.Disconnect()
		if err := a.run(cmd.Context(), a.calculate, args[0]); err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("calc: %s produced no results", args[0])
		}
		return printResults(cmd, res)
	},
}

func printResults(cmd *cobra.Command, res *lca.Results) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	head := []string{"ACTIVITY", "AMOUNT"}
	for _, c := range res.Columns {
		label := c.Method.String()
		if c.Unit != "" {
			label += " [" + c.Unit + "]"
		}
		head = append(head, label)
	}
	fmt.Fprintln(tw, strings.Join(head, "\t"))
	for _, row := range res.Rows {
		cells := []string{row.Node.String(), fmt.Sprintf("%g", row.Amount)}
		if row.Err != "" {
			cells = append(cells, row.Err)
		}
		for _, v := range row.Scores {
			if math.IsNaN(v) {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, fmt.Sprintf("%.6g", v))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	for _, c := range res.Columns {
		if c.Err != "" {
			fmt.Fprintln(tw, c.Err)
		}
	}
	return tw.Flush()
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Load the project and serve core metrics for Prometheus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("listen")
		a, err := openHeadless(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux}

		go func() { _ = a.loop.Run(cmd.Context()) }()
		go func() {
			<-cmd.Context().Done()
			srv.Close()
		}()
		a.logger.Info("abcore: serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func init() {
	metricsCmd.Flags().String("listen", "127.0.0.1:9464", "address to serve /metrics on")
	rootCmd.AddCommand(loadCmd, calcCmd, metricsCmd)
}
