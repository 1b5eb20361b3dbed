package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *CycleReport) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Daily Cycle Report %s\n\n", r.CycleID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window (ms): %d - %d\n\n", r.WindowStart, r.WindowEnd))

	// Matching Summary
	sb.WriteString("## Matching Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Candidates | %d |\n", r.Summary.Candidates))
	sb.WriteString(fmt.Sprintf("| Processed | %d |\n", r.Summary.Processed))
	sb.WriteString(fmt.Sprintf("| Paid | %d |\n", r.Summary.Paid))
	sb.WriteString(fmt.Sprintf("| Skipped | %d |\n", r.Summary.Skipped))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.Summary.Failed))
	sb.WriteString(fmt.Sprintf("| Total Bonus | %s |\n", r.Summary.TotalBonus.StringFixed(2)))
	sb.WriteString("\n")

	if len(r.Skipped) > 0 {
		sb.WriteString("### Skipped Nodes\n\n")
		sb.WriteString("| Reason | Count |\n")
		sb.WriteString("|--------|-------|\n")
		for _, s := range r.Skipped {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", s.Reason, s.Count))
		}
		sb.WriteString("\n")
	}

	// Payouts
	sb.WriteString("## Payouts\n\n")
	if len(r.Payouts) > 0 {
		sb.WriteString("| Participant | Matched | Payable | Bonus | Left Carry | Right Carry | Capped |\n")
		sb.WriteString("|-------------|---------|---------|-------|------------|-------------|--------|\n")
		for _, p := range r.Payouts {
			capped := "no"
			if p.EarningCapped {
				capped = "yes"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
				p.ParticipantID, p.Matched.String(), p.Payable.String(), p.Bonus.String(),
				p.LeftCarry.String(), p.RightCarry.String(), capped))
		}
	} else {
		sb.WriteString("No payouts in this cycle.\n")
	}
	sb.WriteString("\n")

	// Ledger Activity
	sb.WriteString("## Ledger Activity\n\n")
	if len(r.TagTotals) > 0 {
		sb.WriteString("| Tag | Entries | Credits | Debits |\n")
		sb.WriteString("|-----|---------|---------|--------|\n")
		for _, t := range r.TagTotals {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n",
				t.Tag, t.Entries, t.Credits.String(), t.Debits.String()))
		}
	} else {
		sb.WriteString("No ledger activity in the window.\n")
	}
	sb.WriteString("\n")

	// Wallet Totals
	sb.WriteString("## Wallet Totals\n\n")
	if len(r.WalletTotals) > 0 {
		sb.WriteString("| Purpose | Wallets | Balance | Reserved |\n")
		sb.WriteString("|---------|---------|---------|----------|\n")
		for _, w := range r.WalletTotals {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n",
				w.Purpose, w.Wallets, w.Balance.String(), w.Reserved.String()))
		}
	} else {
		sb.WriteString("No wallets.\n")
	}
	sb.WriteString("\n")

	// Archive Export
	sb.WriteString("## Archive Export\n\n")
	if r.Export.Skipped {
		sb.WriteString("No archive configured.\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("Exporter %s: %d entries, seq %d -> %d\n\n",
			r.Export.Exporter, r.Export.Entries, r.Export.FromSeq, r.Export.ToSeq))
	}
	if len(r.Archived) > 0 {
		sb.WriteString("| Tag | Ledger Credits | Archived Credits | Missing |\n")
		sb.WriteString("|-----|----------------|------------------|---------|\n")
		for _, a := range r.Archived {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				a.Tag, a.Ledger.String(), a.Archived.String(), a.Missing().String()))
		}
		sb.WriteString("\n")
	}

	// Errors (always shown if present)
	if len(r.Errors) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, err := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
