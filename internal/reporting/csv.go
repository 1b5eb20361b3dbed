package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders cycle payouts as CSV string.
func RenderCSV(r *CycleReport) string {
	var sb strings.Builder

	// Header
	sb.WriteString("cycle_id,participant_id,matched,payable,bonus,left_carry,right_carry,earning_capped\n")

	// Rows
	for _, p := range r.Payouts {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%t\n",
			r.CycleID,
			p.ParticipantID,
			p.Matched.String(),
			p.Payable.String(),
			p.Bonus.String(),
			p.LeftCarry.String(),
			p.RightCarry.String(),
			p.EarningCapped,
		))
	}

	return sb.String()
}
