package cli

import (
	"fmt"

	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/history"
)

type hostInfo struct {
	ID        string `json:"id"`
	Driver    string `json:"driver"`
	Address   string `json:"address"`
	Database  string `json:"database,omitempty"`
	Tunnel    bool   `json:"tunnel"`
	Active    bool   `json:"active"`
	Connected bool   `json:"connected"`
	Tables    int    `json:"tables"`
	Error     string `json:"error,omitempty"`
}

func describeHost(hs *database.HostSession, active string) hostInfo {
	h := hs.Host()
	info := hostInfo{
		ID:        hs.ID(),
		Driver:    h.Driver,
		Address:   h.Address,
		Database:  h.Database,
		Tunnel:    h.Tunneled(),
		Active:    hs.ID() == active,
		Connected: hs.Connected(),
		Tables:    len(hs.Tables()),
	}
	if h.Port > 0 {
		info.Address = fmt.Sprintf("%s:%d", h.Address, h.Port)
	}
	if err := hs.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

// cmdHosts lists the hosts visible to the user.
func (h *Handler) cmdHosts(ctx *CommandContext) {
	active := ctx.Registry.ActiveID()
	sessions := ctx.Registry.Sessions()

	hosts := make([]hostInfo, 0, len(sessions))
	for _, hs := range sessions {
		hosts = append(hosts, describeHost(hs, active))
	}

	if ctx.GetFlag("format") == "json" {
		printJSON(ctx.Out, hosts)
		return
	}

	if len(hosts) == 0 {
		fmt.Fprintln(ctx.Out, "No accessible hosts.")
		return
	}

	rows := make([][]string, 0, len(hosts))
	for _, info := range hosts {
		status := "up"
		if !info.Connected {
			status = "down"
		}
		marker := ""
		if info.Active {
			marker = "*"
		}
		tunnel := ""
		if info.Tunnel {
			tunnel = "ssh"
		}
		rows = append(rows, []string{marker + info.ID, info.Driver, info.Address, tunnel, status, fmt.Sprint(info.Tables)})
	}
	printTable(ctx.Out, []string{"HOST", "DRIVER", "ADDRESS", "TUNNEL", "STATUS", "TABLES"}, rows, 0)

	for _, info := range hosts {
		if info.Error != "" {
			fmt.Fprintf(ctx.Err, "%s: %s\n", info.ID, info.Error)
		}
	}
}

// cmdTables lists the catalog of one host.
func (h *Handler) cmdTables(ctx *CommandContext) {
	id, ok := ctx.RequireArg(0, "host")
	if !ok {
		return
	}
	hs, ok := ctx.RequireHost(id)
	if !ok {
		return
	}

	tables := hs.Tables()
	if ctx.HasFlag("refresh") {
		var err error
		if tables, err = hs.ListTables(ctx.Ctx); err != nil {
			ctx.Fail("Failed to list tables: %v", err)
			return
		}
	} else if !hs.Connected() {
		ctx.Fail("Host %s is not connected: %v", id, hs.Err())
		return
	}

	if ctx.GetFlag("format") == "json" {
		printJSON(ctx.Out, tables)
		return
	}
	if len(tables) == 0 {
		fmt.Fprintln(ctx.Out, "No tables found.")
		return
	}
	for _, t := range tables {
		fmt.Fprintln(ctx.Out, t)
	}
}

// cmdReconnect retries a host connection.
func (h *Handler) cmdReconnect(ctx *CommandContext) {
	if !ctx.RequireAdmin() {
		return
	}
	id, ok := ctx.RequireArg(0, "host")
	if !ok {
		return
	}
	hs, ok := ctx.RequireHost(id)
	if !ok {
		return
	}

	err := hs.Reconnect(ctx.Ctx)
	if ctx.HistoryStore != nil {
		details := map[string]any{"ok": err == nil}
		if err != nil {
			details["error"] = err.Error()
		}
		_ = ctx.HistoryStore.RecordAudit(ctx.Ctx, ctx.GetSessionID(), history.ActionReconnect, id, details)
	}
	if err != nil {
		ctx.Fail("Reconnect failed: %v", err)
		return
	}
	fmt.Fprintf(ctx.Out, "Connected to %s (%d tables)\n", id, len(hs.Tables()))
}
