package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-cli/internal/model"
)

var showCmd = &cobra.Command{
	Use:   "show <bbl>",
	Short: "Show everything known about one building",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id := args[0]

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		b, err := st.GetBuilding(ctx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return eris.Errorf("no building for BBL %s", id)
		}

		permits, err := st.ListPermitsByBBL(ctx, id)
		if err != nil {
			return err
		}
		txns, err := st.ListTransactions(ctx, id)
		if err != nil {
			return err
		}
		rec, err := st.GetScore(ctx, id)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()

		fmt.Fprintf(w, "BBL\t%s\n", b.BBL)
		fmt.Fprintf(w, "State\t%s\n", b.State)
		if owner := b.DisplayOwner(); owner != "" {
			fmt.Fprintf(w, "Owner\t%s\n", owner)
		}
		writeOptStr(w, "Building class", b.BuildingClass)
		writeOptInt(w, "Total units", b.TotalUnits)
		writeOptInt(w, "Year built", b.YearBuilt)
		writeOptFloat(w, "Assessed value", b.AssessedTotalValue)
		writeOptFloat(w, "Last sale price", b.LastSalePrice)
		writeOptDate(w, "Last sale date", b.LastSaleDate)
		writeOptStr(w, "Mortgage lender", b.MortgageLender)
		writeOptFloat(w, "ECB balance", b.ECBOutstandingBalance)
		if b.LastEnrichedAt != nil {
			fmt.Fprintf(w, "Last enriched\t%s\n", b.LastEnrichedAt.Format(time.RFC3339))
		}

		if len(b.SourceChecks) > 0 {
			fmt.Fprintf(w, "\nSOURCE\tSTATUS\tCHECKED\n")
			for name, check := range b.SourceChecks {
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, check.Status, check.CheckedAt.Format("2006-01-02"))
			}
		}

		if len(permits) > 0 {
			fmt.Fprintf(w, "\nPERMIT\tTYPE\tISSUED\tCONTACTS\n")
			for _, p := range permits {
				issued := ""
				if p.IssuedAt != nil {
					issued = p.IssuedAt.Format("2006-01-02")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.PermitNumber, p.JobType, issued, contactNames(p.Contacts))
			}
		}

		if len(txns) > 0 {
			fmt.Fprintf(w, "\nDOCUMENT\tTYPE\tAMOUNT\tRECORDED\tPRIMARY\n")
			for _, t := range txns {
				amount := ""
				if t.Amount != nil {
					amount = fmt.Sprintf("$%.0f", *t.Amount)
				}
				recorded := ""
				if t.RecordedDate != nil {
					recorded = t.RecordedDate.Format("2006-01-02")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.DocumentID, t.DocType, amount, recorded, primaryMark(t))
			}
		}

		if rec != nil {
			fmt.Fprintf(w, "\nLead score\t%d", rec.LeadScore)
			if rec.LeadClamped {
				fmt.Fprintf(w, " (raw %d)", rec.LeadRaw)
			}
			fmt.Fprintf(w, "\nRisk score\t%d", rec.RiskScore)
			if rec.RiskClamped {
				fmt.Fprintf(w, " (raw %d)", rec.RiskRaw)
			}
			fmt.Fprintf(w, "\n\nFACTOR\tPOINTS\tSEVERITY\tDETAIL\n")
			for _, f := range rec.Factors {
				fmt.Fprintf(w, "%s/%s\t%+d\t%s\t%s\n", f.Kind, f.Name, f.Points, f.Severity, f.Detail)
			}
		}

		return nil
	},
}

func writeOptStr(w *tabwriter.Writer, label string, v *string) {
	if v != nil && *v != "" {
		fmt.Fprintf(w, "%s\t%s\n", label, *v)
	}
}

func writeOptInt(w *tabwriter.Writer, label string, v *int) {
	if v != nil {
		fmt.Fprintf(w, "%s\t%d\n", label, *v)
	}
}

func writeOptFloat(w *tabwriter.Writer, label string, v *float64) {
	if v != nil {
		fmt.Fprintf(w, "%s\t$%.0f\n", label, *v)
	}
}

func writeOptDate(w *tabwriter.Writer, label string, v *time.Time) {
	if v != nil {
		fmt.Fprintf(w, "%s\t%s\n", label, v.Format("2006-01-02"))
	}
}

func contactNames(contacts []model.Contact) string {
	var names []string
	for _, c := range contacts {
		n := c.Name
		if c.IsMobile {
			n += " (mobile)"
		}
		names = append(names, n)
	}
	return strings.Join(names, ", ")
}

func primaryMark(t model.Transaction) string {
	switch {
	case t.IsPrimaryDeed:
		return "deed"
	case t.IsPrimaryMortgage:
		return "mortgage"
	default:
		return ""
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
}
