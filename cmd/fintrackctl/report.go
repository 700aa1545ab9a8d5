package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

const (
	reportSummary       = "summary"
	reportDashboard     = "dashboard"
	reportNotifications = "notifications"
	reportDigest        = "digest"
)

func reportCmd(a *app) *cobra.Command {
	var (
		userID int64
		month  string
		kind   string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a user's report as JSON",
		Long: `Print the summary, dashboard, notifications or monthly digest of one user.

--month takes YYYY-MM, "all" (summary and notifications only) or nothing for the
current month. The digest defaults to the previous month, like the scheduled job.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID < 1 {
				return fmt.Errorf("--user must be a positive id")
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			reports := services.NewReportService(repo, repo, nil, nil, a.cfg.HighExpenseThreshold)
			ctx := cmd.Context()

			var out any
			switch kind {
			case reportSummary, reportNotifications:
				period, err := reports.ResolvePeriod(month)
				if err != nil {
					return err
				}
				if kind == reportSummary {
					sum, err := reports.Summary(ctx, userID, period)
					if err != nil {
						return err
					}
					out = sum.Rounded()
				} else {
					notes, err := reports.Notifications(ctx, userID, period)
					if err != nil {
						return err
					}
					out = core.RoundNotifications(notes)
				}
			case reportDashboard:
				dash, err := reports.Dashboard(ctx, userID)
				if err != nil {
					return err
				}
				out = dash.Rounded()
			case reportDigest:
				period, err := digestPeriod(reports, month)
				if err != nil {
					return err
				}
				if out, err = reports.MonthlyDigest(ctx, userID, period); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown report kind %q (want %s, %s, %s or %s)",
					kind, reportSummary, reportDashboard, reportNotifications, reportDigest)
			}
			return writeIndented(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id (required)")
	cmd.Flags().StringVar(&month, "month", "", "period as YYYY-MM, or all")
	cmd.Flags().StringVar(&kind, "kind", reportSummary, "summary, dashboard, notifications or digest")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// digestPeriod resolves --month for the digest, which always needs a single
// closed month.
func digestPeriod(reports *services.ReportService, month string) (core.Period, error) {
	if month == "all" {
		return core.Period{}, fmt.Errorf("the digest covers a single month")
	}
	period, err := reports.ResolvePeriod(month)
	if err != nil {
		return core.Period{}, err
	}
	if month == "" {
		return period.Previous(), nil
	}
	return *period, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
