package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/johan-st/tsbrowse/internal/access"
)

// cmdWhoami shows current user information.
func (h *Handler) cmdWhoami(ctx *CommandContext) {
	if ctx.User == nil {
		fmt.Fprintln(ctx.Out, "Not authenticated")
		return
	}

	var hosts []string
	if info, ok := access.SessionFromContext(ctx.Ctx); ok {
		hosts = info.Hosts
	} else {
		for _, hs := range ctx.Registry.Sessions() {
			hosts = append(hosts, hs.ID())
		}
	}

	if ctx.GetFlag("format") == "json" {
		info := map[string]any{
			"name":       ctx.User.DisplayName(),
			"admin":      ctx.isAdmin(),
			"anonymous":  ctx.User.IsAnonymous,
			"session_id": ctx.GetSessionID(),
			"hosts":      hosts,
		}
		if ctx.User.PublicKeyFP != "" {
			info["public_key_fp"] = ctx.User.PublicKeyFP
		}
		printJSON(ctx.Out, info)
		return
	}

	fmt.Fprintf(ctx.Out, "User:\t%s\n", ctx.User.DisplayName())
	fmt.Fprintf(ctx.Out, "Admin:\t%v\n", ctx.isAdmin())
	fmt.Fprintf(ctx.Out, "Anonymous:\t%v\n", ctx.User.IsAnonymous)
	if ctx.User.PublicKeyFP != "" {
		fmt.Fprintf(ctx.Out, "Key:\t%s\n", ctx.User.PublicKeyFP)
	}
	fmt.Fprintf(ctx.Out, "Session:\t%s\n", ctx.GetSessionID())
	fmt.Fprintf(ctx.Out, "Hosts:\t%s\n", strings.Join(hosts, ", "))
}

// cmdHelp shows help information.
func (h *Handler) cmdHelp(ctx *CommandContext) {
	if args := ctx.GetPositionalArgs(); len(args) > 0 {
		h.showCommandHelp(ctx, args[0])
		return
	}

	fmt.Fprintln(ctx.Out, `tsbrowse - time-series table browser

USAGE:
  ssh host command [arguments] [options]

HOST COMMANDS:
  hosts, ls                        List accessible hosts
  tables <host>                    List tables on a host
  reconnect <host>                 Retry a failed host (admin)

ROW COMMANDS:
  rows <host> <table>              Show one page of rows, newest first
  count <host> <table>             Count rows

ADMIN COMMANDS (requires admin access):
  sessions                         List active sessions
  history                          View fetch history
  audit                            View audit log

UTILITY COMMANDS:
  whoami                           Show current user info
  help [command]                   Show help
  version                          Show version

COMMON OPTIONS:
  --format=json                    Output in JSON format
  --format=csv                     Output in CSV format (rows)
  --filter=TEXT                    Match TEXT anywhere in the filter column
  --page=N                         Page number, starting at 1

Run 'help <command>' for detailed help on a specific command.`)
}

// showCommandHelp shows help for a specific command.
func (h *Handler) showCommandHelp(ctx *CommandContext, command string) {
	help := map[string]string{
		"hosts": `hosts, ls - List accessible hosts

USAGE:
  hosts [--format=json]

The active host is marked with *. Hosts that failed to connect are listed
as down with their error on stderr.`,

		"tables": `tables - List tables on a host

USAGE:
  tables <host> [--refresh] [--format=json]

OPTIONS:
  --refresh        Re-read the catalog instead of using the cached list`,

		"rows": `rows - Show one page of rows

USAGE:
  rows <host> <table> [options]

OPTIONS:
  --page=N         Page to show (default: 1)
  --filter=TEXT    Only rows whose filter column contains TEXT
  --format=json    Output as JSON
  --format=csv     Output as CSV

EXAMPLES:
  rows plant-a events
  rows plant-a events --filter=r9 --page=2 --format=csv > r9.csv`,

		"count": `count - Count rows

USAGE:
  count <host> <table> [--filter=TEXT] [--format=json]

Prints "unknown" when the database does not report a count.`,

		"history": `history - View fetch history

USAGE:
  history [--host=ID] [--user=NAME] [--session=ID] [--limit=N] [--format=json]`,
	}

	if text, ok := help[command]; ok {
		fmt.Fprintln(ctx.Out, text)
	} else {
		fmt.Fprintf(ctx.Out, "No detailed help available for '%s'\n", command)
	}
}

// cmdVersion shows version information.
func (h *Handler) cmdVersion(ctx *CommandContext) {
	if ctx.GetFlag("format") == "json" {
		printJSON(ctx.Out, map[string]string{"version": h.version})
		return
	}
	fmt.Fprintf(ctx.Out, "tsbrowse %s\n", h.version)
}

// printJSON writes JSON to a writer.
func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// printCSV writes a header line followed by rows.
func printCSV(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// printTable writes aligned columns. Cells wider than maxWidth are
// truncated; zero means no limit.
func printTable(w io.Writer, headers []string, rows [][]string, maxWidth int) {
	widths := make([]int, len(headers))
	cell := func(s string) string {
		s = strings.ReplaceAll(s, "\n", " ")
		if maxWidth > 0 {
			s = runewidth.Truncate(s, maxWidth, "...")
		}
		return s
	}
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(cell(h))
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], runewidth.StringWidth(cell(row[i])))
		}
	}

	writeRow := func(row []string) {
		var b strings.Builder
		for i := range widths {
			v := ""
			if i < len(row) {
				v = cell(row[i])
			}
			if i == len(widths)-1 {
				b.WriteString(v)
				break
			}
			b.WriteString(runewidth.FillRight(v, widths[i]))
			b.WriteString("  ")
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}

	writeRow(headers)
	for _, row := range rows {
		writeRow(row)
	}
}
