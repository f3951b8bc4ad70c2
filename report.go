package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"sjsage522/menucrawler/config"
	"sjsage522/menucrawler/internal/crawler"
	"sjsage522/menucrawler/internal/menu"
)

// renderSummaries prints one row per platform and then every failure
func renderSummaries(w io.Writer, summaries []*crawler.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Platform", "Cities", "Discovered", "Processed", "Skipped", "Failed", "Duration"})

	var failures []crawler.ErrorEntry
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Platform,
			s.Cities,
			s.Discovered,
			s.Processed,
			s.Skipped,
			s.Failed,
			s.Duration.Round(time.Second),
		})
		failures = append(failures, s.Errors...)
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(failures) == 0 {
		return
	}

	e := table.NewWriter()
	e.SetOutputMirror(w)
	e.AppendHeader(table.Row{"URL", "Type", "Cause"})
	for _, f := range failures {
		e.AppendRow(table.Row{f.URL, f.Type, truncate(f.Cause, 120)})
	}
	e.SetStyle(table.StyleRounded)
	e.Render()
}

func renderPlatforms(w io.Writer, platforms []*config.Platform) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Name", "Base URL", "Categories", "Structured", "Cities"})
	for _, p := range platforms {
		t.AppendRow(table.Row{
			p.Name,
			p.BaseURL,
			yesNo(p.Categories != nil),
			yesNo(p.Merchant.Structured != nil),
			strings.Join(p.Cities, ", "),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderIndex(w io.Writer, index []menu.IndexEntry, processed int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Merchant", "Address", "URL"})
	for i, e := range index {
		t.AppendRow(table.Row{i + 1, e.Name, e.Address, e.CleanURL})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d indexed", len(index)), fmt.Sprintf("%d processed", processed), ""})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
