package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/johan-st/tsbrowse/internal/browse"
	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/view"
)

// cmdRows prints one page of a table through the session's controller.
func (h *Handler) cmdRows(ctx *CommandContext) {
	hostID, ok := ctx.RequireArg(0, "host")
	if !ok {
		return
	}
	table, ok := ctx.RequireArg(1, "table")
	if !ok {
		return
	}
	if _, ok := ctx.RequireHost(hostID); !ok {
		return
	}
	page, ok := ctx.GetIntFlag("page", 1)
	if !ok {
		return
	}

	snap, err := ctx.controller.Dispatch(ctx.Ctx, browse.Load{Selection: view.Selection{
		Host:   hostID,
		Table:  table,
		Page:   page,
		Filter: ctx.GetFlag("filter"),
	}})
	if err != nil {
		ctx.Fail("Query failed: %v", err)
		return
	}

	st := snap.View
	switch ctx.GetFlag("format") {
	case "json":
		records := make([]map[string]string, 0, len(st.Rows))
		for _, row := range st.Rows {
			rec := make(map[string]string, len(st.Headers))
			for i, col := range st.Headers {
				if i < len(row) {
					rec[col] = row[i]
				}
			}
			records = append(records, rec)
		}
		out := map[string]any{
			"host":  snap.Selection.Host,
			"table": snap.Selection.Table,
			"page":  snap.Selection.Page,
			"rows":  records,
		}
		if st.TotalKnown {
			out["total"] = st.Total
			out["pages"] = st.TotalPages
		}
		printJSON(ctx.Out, out)

	case "csv":
		if err := printCSV(ctx.Out, st.Headers, st.Rows); err != nil {
			ctx.Fail("Failed to write CSV: %v", err)
		}

	default:
		printTable(ctx.Out, st.Headers, st.Rows, 40)
		fmt.Fprintf(ctx.Out, "\npage %s, %s rows, %s\n",
			st.PageLabel(snap.Selection.Page), totalLabel(st), st.Elapsed.Round(time.Microsecond))
	}
}

func totalLabel(st view.State) string {
	if !st.TotalKnown {
		return "?"
	}
	return humanize.Comma(st.Total)
}

// cmdCount prints the filtered row count of a table.
func (h *Handler) cmdCount(ctx *CommandContext) {
	hostID, ok := ctx.RequireArg(0, "host")
	if !ok {
		return
	}
	table, ok := ctx.RequireArg(1, "table")
	if !ok {
		return
	}
	hs, ok := ctx.RequireHost(hostID)
	if !ok {
		return
	}

	n, known, err := hs.Count(ctx.Ctx, table, ctx.GetFlag("filter"), database.QueryOptionsFrom(h.config.GetBrowse()))
	if err != nil {
		ctx.Fail("Count failed: %v", err)
		return
	}

	if ctx.GetFlag("format") == "json" {
		out := map[string]any{"host": hostID, "table": table, "known": known}
		if known {
			out["count"] = n
		}
		printJSON(ctx.Out, out)
		return
	}
	if !known {
		fmt.Fprintln(ctx.Out, "unknown")
		return
	}
	fmt.Fprintln(ctx.Out, n)
}
