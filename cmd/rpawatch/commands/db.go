package commands

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/rpawatch/db"
	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the rpawatch database",
	Long: `Manage the rpawatch SQLite database.

Examples:
  rpawatch db stats               # Row counts, job statuses and migrations
  rpawatch db migrate             # Apply pending migrations`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides database.path)")
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbMigrateCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	counts, err := db.TableCounts(database)
	if err != nil {
		return errors.Wrap(err, "failed to count rows")
	}
	versions, err := db.AppliedVersions(database)
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}

	pterm.DefaultSection.Println("Database Statistics")
	pterm.Printf("Database Path: %s\n", path)

	tables := make([]string, 0, len(counts))
	for t := range counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	data := pterm.TableData{{"Table", "Rows"}}
	for _, t := range tables {
		data = append(data, []string{t, fmt.Sprint(counts[t])})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	byStatus := pterm.TableData{{"Status", "Jobs"}}
	for _, st := range jobs.AllStatuses() {
		var n int
		if err := database.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, st).Scan(&n); err != nil {
			return errors.Wrapf(err, "failed to count %s jobs", st)
		}
		byStatus = append(byStatus, []string{string(st), fmt.Sprint(n)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(byStatus).Render(); err != nil {
		return err
	}

	pterm.Printf("Migrations applied: %d", len(versions))
	if len(versions) > 0 {
		pterm.Printf(" (latest %s)", versions[len(versions)-1])
	}
	pterm.Println()
	return nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.AppliedVersions(database)
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}
	pterm.Success.Printf("%s is at migration %d\n", path, len(versions))
	return nil
}
