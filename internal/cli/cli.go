package cli

import (
	"fmt"
	"os"

	"github.com/mmmaly/chcemvediet-sub000/internal/api/middleware"
	"github.com/mmmaly/chcemvediet-sub000/internal/app"
	"github.com/mmmaly/chcemvediet-sub000/internal/config"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	db            *gorm.DB
	cfg           *config.Config
	engine        *app.App
	apiKeyManager *middleware.APIKeyManager
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chcemvediet",
	Short: "Freedom-of-information request lifecycle engine",
	Long: `chcemvediet tracks freedom-of-information requests: each request owns a
unique inbound address, incoming mail is routed onto the request, and every
step of the exchange with the public authority is recorded as an action with
working-day deadlines.

Maintenance commands:
  chcemvediet key show             # show the current API key
  chcemvediet key reset            # reset the API key
  chcemvediet obligee add          # register a public authority
  chcemvediet obligee list         # list public authorities
  chcemvediet inforequest list     # list inforequests
  chcemvediet inforequest close    # close an inforequest
  chcemvediet jobs list            # list scheduled jobs
  chcemvediet jobs run <name>      # run one job immediately
  chcemvediet jobs tick            # run one scheduler tick
  chcemvediet pump                 # run one mail pump cycle`,
}

// Execute runs the CLI against an already wired engine.
func Execute(application *app.App) {
	engine = application
	db = application.DB
	cfg = application.Config

	var err error
	apiKeyManager, err = middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot initialize API key manager: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(obligeeCmd)
	rootCmd.AddCommand(inforequestCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(pumpCmd)
}
