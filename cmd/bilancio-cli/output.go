package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	return t
}

func showBalance(client *apiClient, asJSON bool) error {
	var balance balanceDTO
	if err := client.get("/api/balance", &balance); err != nil {
		return err
	}
	if asJSON {
		return printJSON(balance)
	}
	fmt.Printf("Balance as of %s: %s\n", balance.AsOf, balance.Balance)
	return nil
}

func showTransactions(client *apiClient, asJSON bool) error {
	var txns []transactionDTO
	if err := client.get("/api/transactions", &txns); err != nil {
		return err
	}
	if asJSON {
		return printJSON(txns)
	}
	names, err := client.categoryNames()
	if err != nil {
		return err
	}

	t := newTable()
	t.AppendHeader(table.Row{"Date", "Amount", "Category", "Memo", "Source"})
	for _, txn := range txns {
		amount := txn.Amount
		if txn.Cents < 0 {
			amount = text.FgRed.Sprint(amount)
		} else {
			amount = text.FgGreen.Sprint(amount)
		}
		t.AppendRow(table.Row{txn.Date, amount, names[txn.CategoryID], txn.Memo, txn.Source})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	t.Render()
	return nil
}

func showBudgets(client *apiClient, asJSON bool) error {
	var budgets []budgetDTO
	if err := client.get("/api/budgets", &budgets); err != nil {
		return err
	}
	if asJSON {
		return printJSON(budgets)
	}
	names, err := client.categoryNames()
	if err != nil {
		return err
	}

	t := newTable()
	t.AppendHeader(table.Row{"Category", "Period", "Limit", "Consumed", "Used", "Status"})
	for _, b := range budgets {
		if !b.Active {
			continue
		}
		var state budgetStatusDTO
		if err := client.get("/api/budgets/"+b.ID+"/status", &state); err != nil {
			return err
		}
		status := state.Status
		switch status {
		case "exceeded":
			status = text.FgRed.Sprint("EXCEEDED")
		case "warning":
			status = text.FgYellow.Sprint("WARNING")
		default:
			status = text.FgGreen.Sprint("OK")
		}
		t.AppendRow(table.Row{
			names[b.CategoryID],
			b.PeriodKind,
			b.Limit,
			state.Consumed.String(),
			fmt.Sprintf("%.0f%%", state.Percentage),
			status,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.Render()
	return nil
}

func showGoals(client *apiClient, asJSON bool) error {
	var goals []goalDTO
	if err := client.get("/api/goals", &goals); err != nil {
		return err
	}
	if asJSON {
		return printJSON(goals)
	}

	t := newTable()
	t.AppendHeader(table.Row{"Goal", "Target", "Saved", "Progress", "Milestones", "On Track"})
	for _, g := range goals {
		var progress goalProgressDTO
		if err := client.get("/api/goals/"+g.ID+"/progress", &progress); err != nil {
			return err
		}
		onTrack := text.FgGreen.Sprint("yes")
		if !progress.OnTrack {
			onTrack = text.FgRed.Sprint("no")
		}
		milestones := "-"
		if len(progress.Milestones) > 0 {
			parts := make([]string, len(progress.Milestones))
			for i, m := range progress.Milestones {
				parts[i] = fmt.Sprintf("%d%%", m)
			}
			milestones = strings.Join(parts, " ")
		}
		t.AppendRow(table.Row{
			g.Name,
			g.Target,
			progress.Accumulated.String(),
			fmt.Sprintf("%.0f%%", progress.Percentage),
			milestones,
			onTrack,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
	return nil
}

func showUpcoming(client *apiClient, asJSON bool) error {
	var occurrences []upcomingDTO
	if err := client.get("/api/upcoming", &occurrences); err != nil {
		return err
	}
	if asJSON {
		return printJSON(occurrences)
	}

	t := newTable()
	t.AppendHeader(table.Row{"Date", "Amount", "Memo"})
	for _, occ := range occurrences {
		t.AppendRow(table.Row{occ.Date, occ.Amount, occ.Memo})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	t.Render()
	return nil
}

func runImport(client *apiClient, path string, cfg *CLIConfig) error {
	rows, err := parseStatement(path, cfg)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no rows found in %s", path)
	}
	fmt.Printf("Parsed %d rows from %s\n", len(rows), path)

	var report importReportDTO
	body := map[string]any{"rows": rows}
	if err := client.post("/api/import", body, &report); err != nil {
		return err
	}

	fmt.Printf("Inserted: %d  Duplicates: %d  Conflicts: %d  Rejected: %d\n",
		report.Report.Inserted, report.Report.Duplicates,
		report.Report.Conflicts, report.Report.Rejected)
	for _, result := range report.Report.Results {
		if result.Status == "conflict" || result.Status == "rejected" {
			fmt.Printf("  row %d: %s (%s)\n", result.Index, result.Status, result.Reason)
		}
	}
	for _, parseErr := range report.ParseErrors {
		fmt.Printf("  parse error: %s\n", parseErr)
	}
	return nil
}
