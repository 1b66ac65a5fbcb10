// Command osprey prints a domain's email-authentication posture.
//
// It runs the SPF, DMARC, DKIM, and DNSSEC checks against one or more domains
// and prints the findings of each check, colored by severity. The exit code
// is 1 when any check recorded a failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/colorstring"

	"github.com/synqronlabs/osprey"
)

var (
	settingsPath = flag.String("settings", "", "Path to a JSON settings document")
	backend      = flag.String("backend", "", `DoH backend, "google" or "cloudflare"`)
	selectors    = flag.String("selectors", "", "Comma-separated DKIM selectors to check")
	showRecords  = flag.Bool("records", false, "Display the raw DNS records")
	verbose      = flag.Bool("v", false, "Enable debug logging")
)

func main() {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)

	flag.Parse()
	if flag.NArg() == 0 {
		log.Println("Usage:", os.Args[0], "[flags] <domain> [<domain>...]")
		os.Exit(2)
	}

	var logger *slog.Logger
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	settings := &osprey.Settings{}
	if *settingsPath != "" {
		s, err := osprey.LoadSettings(*settingsPath)
		if err != nil {
			log.Fatal(err)
		}
		settings = s
	}
	if *backend != "" {
		settings.DNSBackend = *backend
	}
	if *selectors != "" {
		settings.DKIMSelectors = strings.Split(*selectors, ",")
	}

	analyzer, err := settings.Analyzer(logger)
	if err != nil {
		log.Fatal(err)
	}

	exit := 0
	for i, domain := range flag.Args() {
		if i > 0 {
			fmt.Println()
		}
		if printReport(analyzer.Analyze(context.Background(), domain)) {
			exit = 1
		}
	}
	os.Exit(exit)
}

// printReport renders one report and reports whether any check failed.
func printReport(report *osprey.Report) (failed bool) {
	colorstring.Println(fmt.Sprintf("[bold]-- %s[reset] (report %s)", report.Domain, report.ID))
	if report.Provider != nil && report.Provider.Provider != nil {
		colorstring.Println(fmt.Sprintf("[blue]Mail provider:[reset] %s", report.Provider.Provider.Name))
	}

	if printSection("SPF", report.SPF.Passes, report.SPF.Warnings, report.SPF.Failures, report.SPF.Raw) {
		failed = true
	}
	if printSection("DMARC", report.DMARC.Passes, report.DMARC.Warnings, report.DMARC.Failures, report.DMARC.Raw) {
		failed = true
	}

	if len(report.DKIM.Failures) > 0 {
		if printSection("DKIM", nil, nil, report.DKIM.Failures, "") {
			failed = true
		}
	}
	for _, rec := range report.DKIM.Records {
		name := fmt.Sprintf("DKIM (%s)", rec.Selector)
		if printSection(name, rec.Passes, rec.Warnings, rec.Failures, rec.Raw) {
			failed = true
		}
	}

	if printSection("DNSSEC", report.DNSSEC.Passes, report.DNSSEC.Warnings, report.DNSSEC.Failures, "") {
		failed = true
	}
	return failed
}

// printSection renders one check's findings, colored by severity.
func printSection(name string, passes, warnings, failures []string, record string) bool {
	color, mark := "[green]", "+"
	switch {
	case len(failures) > 0:
		color, mark = "[red]", "!"
	case len(warnings) > 0:
		color, mark = "[yellow]", " "
	}

	colorstring.Println(fmt.Sprintf("[%s%s[reset]] %s[bold]%s[reset]", color, mark, color, name))
	for _, m := range failures {
		colorstring.Println(fmt.Sprintf("    [red]%s[reset]", m))
	}
	for _, m := range warnings {
		colorstring.Println(fmt.Sprintf("    [yellow]%s[reset]", m))
	}
	for _, m := range passes {
		colorstring.Println(fmt.Sprintf("    [green]%s[reset]", m))
	}

	if *showRecords && record != "" {
		colorstring.Println("    [blue]Record:[reset]")
		fmt.Printf("\t%s\n", record)
	}
	return len(failures) > 0
}
