package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/teranos/rpawatch/am"
	"github.com/teranos/rpawatch/logger"
	"github.com/teranos/rpawatch/version"
)

// printStartupBanner prints the service summary shown by serve
func printStartupBanner(verbosity int, dbPath string, cfg *am.Config) {
	pterm.DefaultHeader.WithFullWidth().Printf("rpawatch - RPA fault watch")
	pterm.Println()

	info := version.Get()
	rows := pterm.TableData{
		{"Version", fmt.Sprintf("%s (commit %s)", info.Version, info.Short())},
		{"Built", info.BuildTime},
		{"Verbosity", logger.LevelName(verbosity)},
		{"Database", dbPath},
		{"Feed", cfg.Feed.WSURL},
		{"Mail", fmt.Sprintf("%s -> %s", cfg.Mail.Username, cfg.Mail.DeveloperTo)},
		{"API", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)},
	}
	for _, f := range am.FilesUsed() {
		rows = append(rows, []string{"Config", f})
	}
	_ = pterm.DefaultTable.WithData(rows).Render()
	pterm.Info.Println("Press Ctrl+C to stop")
}
