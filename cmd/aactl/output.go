package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"aadash/internal/core"
	csvexport "aadash/internal/export/csv"
	"aadash/internal/storage"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func printConsent(out io.Writer, c core.Consent) error {
	mode := "live"
	if c.Mock {
		mode = "mock"
	}
	_, err := fmt.Fprintf(out, "Consent %s\n  status: %s\n  user:   %s\n  mode:   %s\n", c.Handle, c.Status, c.UserID, mode)
	return err
}

func printAccounts(out io.Writer, accounts []core.Account) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tBANK\tTYPE\tNUMBER\tBALANCE\tCURRENCY")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.Bank, a.AccountType, a.MaskedNumber, a.Balance.StringFixed(2), a.Currency)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := core.Summarize(accounts)
	fmt.Fprintf(out, "\nTotal assets: %s\nTotal due:    %s\nNet worth:    %s\n",
		s.TotalAssets.StringFixed(2), s.TotalDue.StringFixed(2), s.NetWorth.StringFixed(2))

	for _, alert := range core.BuildAlerts(accounts) {
		fmt.Fprintf(out, "[%s] %s\n", alert.Level, alert.Message)
	}
	return nil
}

func printTransactions(out io.Writer, txns []core.Transaction) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "DATE\tDESCRIPTION\tCATEGORY\tUPI\tAMOUNT")
	for _, t := range txns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", csvexport.FormatDate(t.Date), t.Description, t.Category, t.UPIAppName(), t.Amount.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d transactions\n", len(txns))
	return err
}

func printHistory(out io.Writer, records []storage.ConsentRecord) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tHANDLE\tSTATUS\tMOCK\tGRANTED\tEXPORT")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%s\n", r.ID, r.Consent.Handle, r.Consent.Status, r.Consent.Mock,
			r.Consent.GrantedAt.Format("2006-01-02 15:04:05"), r.Export.Status)
	}
	return tw.Flush()
}
