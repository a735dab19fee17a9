package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"bintunet/pkg/config"
)

// printUsers lists accounts without their password or access code.
func printUsers(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tTIER\tCREDITS\tMAX STREAMS")
	for _, u := range cfg.Auth.Users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", u.ID, u.Username, u.Email, u.Tier, u.Credits, u.MaxStreams)
	}
	return tw.Flush()
}
