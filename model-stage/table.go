package main

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/platform/auditlog"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const maxDescriptionWidth = 60

func renderVersions(versions []domain.ModelVersion, now time.Time) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Version", "Stage", "Updated", "Description"})
	for _, v := range versions {
		updated := "-"
		if !v.UpdatedAt.IsZero() {
			updated = humanize.RelTime(v.UpdatedAt, now, "ago", "from now")
		}
		tw.AppendRow(table.Row{strconv.FormatInt(v.Version, 10), v.CurrentStage.String(), updated, v.Description})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, WidthMax: maxDescriptionWidth},
	})
	if len(versions) == 0 {
		tw.AppendFooter(table.Row{"", "", "", "no versions"})
	}
	return tw.Render()
}

// renderHistory lists audit records with a shortened chain digest.
func renderHistory(records []auditlog.Record) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Event", "When", "Actor", "From", "To", "Digest"})
	for _, rec := range records {
		var change struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		_ = json.Unmarshal(rec.Payload, &change)
		digest := rec.Digest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		tw.AppendRow(table.Row{
			strconv.FormatInt(rec.ID, 10),
			rec.OccurredAt.Local().Format(time.DateTime),
			rec.Actor,
			change.From,
			change.To,
			digest,
		})
	}
	if len(records) == 0 {
		tw.AppendFooter(table.Row{"", "", "", "", "", "no stage changes"})
	}
	return tw.Render()
}
