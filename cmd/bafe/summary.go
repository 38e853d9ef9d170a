package main

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bazodiac/bafe/pkg/compliance"
	"github.com/bazodiac/bafe/pkg/issues"
)

// renderSummary prints the per-domain statuses followed by every issue.
func renderSummary(w io.Writer, resp *compliance.Response) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("compliance_status: " + string(resp.ComplianceStatus))
	tw.AppendHeader(table.Row{"Domain", "Status", "Notes"})
	for _, d := range issues.Domains() {
		c := resp.Components[d]
		tw.AppendRow(table.Row{d, c.Status, strings.Join(c.Notes, "\n")})
	}
	tw.Render()

	all := append(append([]issues.Issue{}, resp.Errors...), resp.Warnings...)
	if len(all) == 0 {
		return
	}
	it := table.NewWriter()
	it.SetOutputMirror(w)
	it.AppendHeader(table.Row{"Severity", "Code", "Path", "Message"})
	for _, is := range all {
		it.AppendRow(table.Row{is.Severity, is.Code.String(), is.PathString(), is.Message})
	}
	it.Render()
}
