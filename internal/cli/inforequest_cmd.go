package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/spf13/cobra"
)

// inforequestCmd represents the inforequest command group
var inforequestCmd = &cobra.Command{
	Use:   "inforequest",
	Short: "Inforequest management",
}

var (
	inforequestApplicant string
	inforequestClosed    bool
)

var inforequestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inforequests",
	Run: func(cmd *cobra.Command, args []string) {
		query := db.Model(&models.Inforequest{}).Order("id ASC")
		if inforequestApplicant != "" {
			query = query.Where("applicant = ?", inforequestApplicant)
		}
		if !inforequestClosed {
			query = query.Where("closed = ?", false)
		}

		var inforequests []models.Inforequest
		if err := query.Find(&inforequests).Error; err != nil {
			fmt.Fprintf(os.Stderr, "error: listing inforequests: %v\n", err)
			os.Exit(1)
		}

		if len(inforequests) == 0 {
			fmt.Println("No inforequests found.")
			return
		}

		fmt.Printf("%-6s %-8s %-30s %-35s %s\n", "ID", "Closed", "Applicant", "Unique email", "Submitted")
		fmt.Println(strings.Repeat("-", 100))
		for _, ir := range inforequests {
			fmt.Printf("%-6d %-8t %-30s %-35s %s\n",
				ir.ID, ir.Closed, ir.Applicant, ir.UniqueEmail,
				ir.SubmissionDate.Format("2006-01-02"))
		}
		fmt.Printf("%d inforequests\n", len(inforequests))
	},
}

var inforequestCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close an inforequest",
	Long:  `Close an inforequest. Open deadlines stop counting and later inbound mail no longer notifies the applicant. Asks for confirmation.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: invalid inforequest ID")
			os.Exit(1)
		}

		ir, err := engine.Inforequests.Get(uint(id))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if ir.Closed {
			fmt.Printf("Inforequest %d is already closed.\n", ir.ID)
			return
		}

		fmt.Printf("About to close inforequest %d (%s, applicant %s).\n", ir.ID, ir.UniqueEmail, ir.Applicant)
		fmt.Print("Continue? (yes/no): ")

		reader := bufio.NewReader(os.Stdin)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: reading input: %v\n", err)
			os.Exit(1)
		}
		input = strings.TrimSpace(strings.ToLower(input))
		if input != "yes" && input != "y" {
			fmt.Println("Cancelled.")
			return
		}

		if err := engine.Inforequests.Close(uint(id)); err != nil {
			fmt.Fprintf(os.Stderr, "error: closing inforequest: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Inforequest %d closed.\n", id)
	},
}

func init() {
	inforequestListCmd.Flags().StringVar(&inforequestApplicant, "applicant", "", "filter by applicant reference")
	inforequestListCmd.Flags().BoolVar(&inforequestClosed, "all", false, "include closed inforequests")

	inforequestCmd.AddCommand(inforequestListCmd)
	inforequestCmd.AddCommand(inforequestCloseCmd)
}
