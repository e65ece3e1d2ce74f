package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mwiesel/vodamon/internal/contract"
	"github.com/mwiesel/vodamon/internal/core"
	"github.com/mwiesel/vodamon/internal/usage"
	"github.com/mwiesel/vodamon/internal/vodafone"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(10)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Fetch and print current usage for all configured contracts.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if len(cfg.Accounts) == 0 {
				return fmt.Errorf("no accounts configured; run `vodamon login` first (config: %s)", path)
			}
			logger := setupLogger(cfg.Logging)

			pool := vodafone.NewPool(cfg.MinLoginDelay(), logger)
			defer pool.CloseAll()

			engine := core.NewEngine(pool, cfg.Interval(), cfg.CycleTimeout(), logger)
			refs := contractRefs(cmd.Context(), pool, cfg.Accounts, logger)
			if len(refs) == 0 {
				return fmt.Errorf("no contracts to poll")
			}
			engine.SetContracts(refs)
			engine.RefreshAll(cmd.Context())

			failures := 0
			for _, ref := range refs {
				view, ok := engine.View(ref.ContractID)
				if !ok {
					err := engine.LastError(ref.ContractID)
					fmt.Fprintln(cmd.OutOrStdout(), renderFailure(ref.ContractID, err))
					failures++
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderView(view))
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d contracts failed", failures, len(refs))
			}
			return nil
		},
	}
}

func renderFailure(contractID string, err error) string {
	msg := "no data"
	if err != nil {
		msg = err.Error()
	}
	return titleStyle.Render("Contract "+contractID) + "\n" +
		"  " + errStyle.Render(msg) + "\n"
}

func renderView(view *contract.View) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Contract " + view.ContractID()))
	b.WriteString("\n")

	rows := []struct {
		label    string
		category usage.Category
	}{
		{"Minutes", usage.CategoryMinutes},
		{"SMS", usage.CategorySMS},
		{"Data", usage.CategoryData},
	}
	for _, row := range rows {
		summary := view.Summary(row.category)
		b.WriteString("  " + labelStyle.Render(row.label) + renderSummary(summary))
		if summary.Names != "" {
			b.WriteString(" " + dimStyle.Render("("+summary.Names+")"))
		}
		b.WriteString("\n")
	}

	if current, ok := view.BillingCurrentSummary(); ok {
		b.WriteString("  " + labelStyle.Render("Billing") + fmt.Sprintf("%.2f EUR this cycle", current))
		if last, ok := view.BillingLastSummary(); ok {
			b.WriteString(fmt.Sprintf(", %.2f EUR last cycle", last))
		}
		if days, ok := view.BillingCycleDays(); ok {
			b.WriteString(fmt.Sprintf(", %d days left", days))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderSummary(summary contract.CategorySummary) string {
	if summary.Remaining == nil && summary.Used == nil && summary.Total == nil {
		return dimStyle.Render("not included")
	}

	unit := summary.Unit
	part := func(value *int64, suffix string) string {
		if value == nil {
			return ""
		}
		if unit != "" {
			return fmt.Sprintf("%d %s %s", *value, unit, suffix)
		}
		return fmt.Sprintf("%d %s", *value, suffix)
	}

	parts := []string{}
	for _, s := range []string{
		part(summary.Remaining, "left"),
		part(summary.Used, "used"),
		part(summary.Total, "total"),
	} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
