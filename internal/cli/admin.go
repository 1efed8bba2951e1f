package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/johan-st/tsbrowse/internal/history"
	"github.com/johan-st/tsbrowse/internal/server"
)

// cmdSessions lists active SSH sessions.
func (h *Handler) cmdSessions(ctx *CommandContext) {
	if !ctx.RequireAdmin() {
		return
	}

	if ctx.Session == nil {
		ctx.Fail("sessions command is only available in SSH server mode")
		return
	}

	sessionMgr := server.GetSessionMgrFromSSH(ctx.Session)
	if sessionMgr == nil {
		ctx.Fail("Session manager not available")
		return
	}

	sessions := sessionMgr.ListActiveSessions()

	if ctx.GetFlag("format") == "json" {
		result := make([]map[string]any, 0, len(sessions))
		for _, s := range sessions {
			item := map[string]any{
				"id":          s.ID,
				"user":        s.User.DisplayName(),
				"remote_addr": s.RemoteAddr,
				"duration":    s.Duration().String(),
				"idle":        s.IdleTime().String(),
			}
			if s.Controller != nil {
				sel := s.Controller.Snapshot().Selection
				item["host"] = sel.Host
				item["table"] = sel.Table
			}
			result = append(result, item)
		}
		printJSON(ctx.Out, result)
		return
	}

	if len(sessions) == 0 {
		fmt.Fprintln(ctx.Out, "No active sessions")
		return
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		where := ""
		if s.Controller != nil {
			sel := s.Controller.Snapshot().Selection
			where = sel.Host + "/" + sel.Table
		}
		rows = append(rows, []string{
			s.ID[:8],
			s.User.DisplayName(),
			s.RemoteAddr,
			formatDuration(s.Duration()),
			formatDuration(s.IdleTime()),
			where,
		})
	}
	printTable(ctx.Out, []string{"ID", "USER", "REMOTE", "DURATION", "IDLE", "BROWSING"}, rows, 0)
}

// cmdHistory shows recorded fetches. Non-admins only see their own.
func (h *Handler) cmdHistory(ctx *CommandContext) {
	if ctx.HistoryStore == nil {
		ctx.Fail("History is not enabled")
		return
	}

	limit, ok := ctx.GetIntFlag("limit", 50)
	if !ok {
		return
	}

	q := history.Query{
		Host:      ctx.GetFlag("host"),
		SessionID: ctx.GetFlag("session"),
		UserName:  ctx.GetFlag("user"),
		Limit:     limit,
	}
	if !ctx.isAdmin() {
		q.UserName = ctx.User.DisplayName()
	}

	entries, err := ctx.HistoryStore.ListEntries(ctx.Ctx, q)
	if err != nil {
		ctx.Fail("Error fetching history: %v", err)
		return
	}

	if ctx.GetFlag("format") == "json" {
		printJSON(ctx.Out, entries)
		return
	}

	if len(entries) == 0 {
		fmt.Fprintln(ctx.Out, "No history")
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := humanize.Comma(int64(e.Rows)) + " rows"
		if e.Error != "" {
			status = "error: " + e.Error
		}
		rows = append(rows, []string{
			humanize.Time(e.CreatedAt),
			e.UserName,
			e.Host,
			e.Table,
			fmt.Sprint(e.Page),
			e.Filter,
			e.Elapsed.Round(time.Microsecond).String(),
			status,
		})
	}
	printTable(ctx.Out, []string{"WHEN", "USER", "HOST", "TABLE", "PAGE", "FILTER", "ELAPSED", "RESULT"}, rows, 50)
}

// cmdAudit shows the audit log.
func (h *Handler) cmdAudit(ctx *CommandContext) {
	if !ctx.RequireAdmin() {
		return
	}

	if ctx.HistoryStore == nil {
		ctx.Fail("Audit log is not enabled")
		return
	}

	limit, ok := ctx.GetIntFlag("limit", 50)
	if !ok {
		return
	}

	records, err := ctx.HistoryStore.ListAudit(ctx.Ctx, ctx.GetFlag("session"), limit)
	if err != nil {
		ctx.Fail("Error fetching audit log: %v", err)
		return
	}

	if ctx.GetFlag("format") == "json" {
		printJSON(ctx.Out, records)
		return
	}

	if len(records) == 0 {
		fmt.Fprintln(ctx.Out, "No audit log entries")
		return
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.CreatedAt.Format(time.DateTime),
			r.Action,
			r.Host,
			r.Details,
		})
	}
	printTable(ctx.Out, []string{"TIME", "ACTION", "HOST", "DETAILS"}, rows, 60)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
