package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/rpawatch/internal/util"
	"github.com/teranos/rpawatch/rca"
)

// RCACmd represents the rca (knowledge base) command
var RCACmd = &cobra.Command{
	Use:   "rca",
	Short: "Inspect and import the root-cause knowledge base",
	Long: `Inspect and import the root-cause knowledge base.

The import file is YAML with a top-level "records" list; entries with an
existing rca_id are replaced, counters included.

Examples:
  rpawatch rca ls
  rpawatch rca import kb.yaml`,
}

var rcaLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List knowledge base entries with their counters",
	RunE:  runRCALs,
}

var rcaImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Upsert knowledge base entries from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRCAImport,
}

func init() {
	RCACmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides database.path)")
	RCACmd.AddCommand(rcaLsCmd)
	RCACmd.AddCommand(rcaImportCmd)
}

func runRCALs(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	list, err := rca.NewStore(database).List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		pterm.Info.Println("Knowledge base is empty")
		return nil
	}

	data := pterm.TableData{{"RCA", "Root cause", "Solution", "Seen", "Approved", "Rejected", "Restart ok", "Restart failed"}}
	for _, r := range list {
		data = append(data, []string{
			r.RCAID, util.Truncate(r.RootCause, 40), r.SolutionType,
			fmt.Sprint(r.TotalOccurrences),
			fmt.Sprint(r.HumanApproved),
			fmt.Sprint(r.HumanRejected),
			fmt.Sprint(r.AutoActionSuccess),
			fmt.Sprint(r.AutoActionFailure),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runRCAImport(cmd *cobra.Command, args []string) error {
	recs, err := rca.LoadKnowledgeBase(args[0])
	if err != nil {
		return err
	}

	database, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	n, err := rca.NewStore(database).Import(recs)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Imported %d knowledge base entries from %s\n", n, args[0])
	return nil
}
