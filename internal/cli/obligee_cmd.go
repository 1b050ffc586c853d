package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// obligeeCmd represents the obligee command group
var obligeeCmd = &cobra.Command{
	Use:   "obligee",
	Short: "Public authority management",
	Long:  `Register public authorities and manage the addresses requests are sent to.`,
}

var (
	obligeeName   string
	obligeeStreet string
	obligeeCity   string
	obligeeZip    string
	obligeeEmails []string
	obligeeSearch string
	obligeeLimit  int
)

var obligeeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a public authority",
	Run: func(cmd *cobra.Command, args []string) {
		ob, err := engine.Obligees.Create(obligeeName, obligeeStreet, obligeeCity, obligeeZip, obligeeEmails)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: creating obligee: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Obligee registered.")
		fmt.Printf("  ID: %d\n", ob.ID)
		fmt.Printf("  Name: %s\n", ob.Name)
		fmt.Printf("  Emails: %s\n", strings.Join(ob.EmailList(), ", "))
	},
}

var obligeeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List public authorities",
	Run: func(cmd *cobra.Command, args []string) {
		obligees, err := engine.Obligees.List(obligeeSearch, obligeeLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: listing obligees: %v\n", err)
			os.Exit(1)
		}

		if len(obligees) == 0 {
			fmt.Println("No obligees found.")
			return
		}

		fmt.Printf("%-6s %-8s %-40s %s\n", "ID", "Active", "Name", "Emails")
		fmt.Println(strings.Repeat("-", 80))
		for _, ob := range obligees {
			fmt.Printf("%-6d %-8t %-40s %s\n", ob.ID, ob.Active, ob.Name, strings.Join(ob.EmailList(), ", "))
		}
		fmt.Printf("%d obligees\n", len(obligees))
	},
}

var obligeeActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Mark an obligee as accepting new inforequests",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setObligeeActive(args[0], true)
	},
}

var obligeeDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Stop an obligee from accepting new inforequests",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setObligeeActive(args[0], false)
	},
}

func setObligeeActive(idArg string, active bool) {
	id, err := strconv.ParseUint(idArg, 10, 32)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid obligee ID")
		os.Exit(1)
	}
	if err := engine.Obligees.SetActive(uint(id), active); err != nil {
		fmt.Fprintf(os.Stderr, "error: updating obligee: %v\n", err)
		os.Exit(1)
	}
	if active {
		fmt.Printf("Obligee %d activated.\n", id)
	} else {
		fmt.Printf("Obligee %d deactivated.\n", id)
	}
}

func init() {
	obligeeAddCmd.Flags().StringVar(&obligeeName, "name", "", "authority name (required)")
	obligeeAddCmd.Flags().StringVar(&obligeeStreet, "street", "", "street address")
	obligeeAddCmd.Flags().StringVar(&obligeeCity, "city", "", "city")
	obligeeAddCmd.Flags().StringVar(&obligeeZip, "zip", "", "postal code")
	obligeeAddCmd.Flags().StringSliceVar(&obligeeEmails, "email", nil, "notification address, repeatable (at least one required)")
	obligeeAddCmd.MarkFlagRequired("name")
	obligeeAddCmd.MarkFlagRequired("email")

	obligeeListCmd.Flags().StringVar(&obligeeSearch, "search", "", "filter by name substring")
	obligeeListCmd.Flags().IntVar(&obligeeLimit, "limit", 100, "maximum rows")

	obligeeCmd.AddCommand(obligeeAddCmd)
	obligeeCmd.AddCommand(obligeeListCmd)
	obligeeCmd.AddCommand(obligeeActivateCmd)
	obligeeCmd.AddCommand(obligeeDeactivateCmd)
}
