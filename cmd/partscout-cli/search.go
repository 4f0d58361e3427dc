package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/spf13/cobra"
)

var (
	flagUser      string
	flagPartType  string
	flagMounting  string
	flagCount     int
	flagProviders []string
	flagOptions   map[string]string
	flagJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search <part-number>",
	Short: "Look up a part across every configured provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&flagUser, "user", os.Getenv("PARTSCOUT_USER"), "User whose provider credentials are used (required)")
	searchCmd.Flags().StringVar(&flagPartType, "type", "", "Part type hint, e.g. Resistor")
	searchCmd.Flags().StringVar(&flagMounting, "mounting", "", "Mounting type hint: surface_mount or through_hole")
	searchCmd.Flags().IntVar(&flagCount, "count", 0, "Maximum records per provider (0 uses the server default)")
	searchCmd.Flags().StringSliceVar(&flagProviders, "provider", nil, "Restrict the search to these providers")
	searchCmd.Flags().StringToStringVar(&flagOptions, "option", nil, "Provider option as key=value, e.g. currency=EUR")
	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the raw result as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if flagUser == "" {
		return fmt.Errorf("--user or PARTSCOUT_USER is required")
	}
	q := catalog.Query{
		PartNumber:   args[0],
		PartType:     flagPartType,
		MountingType: flagMounting,
		RecordCount:  flagCount,
		User:         flagUser,
		Options:      flagOptions,
		Providers:    flagProviders,
	}

	var res catalog.Result
	if err := newAPIClient(2*time.Minute).call("POST", "/v1/parts/search", q, &res); err != nil {
		return err
	}
	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(cmd.OutOrStdout(), &res)
	return nil
}

func printResult(w io.Writer, res *catalog.Result) {
	names := make([]string, 0, len(res.Outcomes))
	for name := range res.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "fetch %s: %d part(s) from %d provider(s)\n", res.ID, len(res.Parts), len(names))
	for _, name := range names {
		o := res.Outcomes[name]
		line := fmt.Sprintf("  %-16s  %-14s  %3d  %6s", name, o.Status, o.Records, o.Duration.Round(time.Millisecond))
		if o.RetryAfter > 0 {
			line += fmt.Sprintf("  retry in %s", o.RetryAfter)
		}
		if o.Message != "" {
			line += "  " + o.Message
		}
		fmt.Fprintln(w, line)
	}

	for _, p := range res.Parts {
		fmt.Fprintf(w, "\n%s %s\n", p.Manufacturer, p.ManufacturerPartNumber)
		if p.Description != "" {
			fmt.Fprintf(w, "  %s\n", p.Description)
		}
		var tags []string
		for _, t := range []string{p.PartType, p.MountingType, p.Package} {
			if t != "" {
				tags = append(tags, t)
			}
		}
		if len(tags) > 0 {
			fmt.Fprintf(w, "  %s\n", strings.Join(tags, " / "))
		}
		for _, s := range p.Stock {
			fmt.Fprintf(w, "  stock  %-16s %12s", s.Supplier, humanize.Comma(s.Quantity))
			if s.SupplierPartNumber != "" {
				fmt.Fprintf(w, "  (%s)", s.SupplierPartNumber)
			}
			fmt.Fprintln(w)
		}
		for _, pb := range p.Pricing {
			fmt.Fprintf(w, "  price  %10s+  %s %s\n", humanize.Comma(int64(pb.Quantity)), pb.UnitPrice.String(), pb.Currency)
		}
		if p.DatasheetURL != "" {
			fmt.Fprintf(w, "  datasheet  %s\n", p.DatasheetURL)
		}
		if len(p.Sources) > 0 {
			fmt.Fprintf(w, "  sources  %s\n", strings.Join(p.Sources, ", "))
		}
	}
}
