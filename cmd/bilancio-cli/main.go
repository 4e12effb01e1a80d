// bilancio-cli is a terminal client for the bilancio HTTP API: listing
// transactions, budget and goal status, and importing bank statement
// exports (CSV or XLSX).
package main

import (
	"fmt"
	"os"

	"github.com/GiGurra/boa/pkg/boa"
)

type Params struct {
	Command string `descr:"What to do" alts:"balance,transactions,budgets,goals,upcoming,import" strict:"true" positional:"true"`
	File    string `descr:"Statement file for the import command (.csv or .xlsx)"`
	Server  string `descr:"API base URL, overrides config and SERVER_URL"`
	Config  string `descr:"Path to the CLI config file (default ~/.bilancio.yaml)"`
	JSON    bool   `descr:"Print raw JSON instead of tables"`
}

func main() {
	boa.NewCmdT[Params]("bilancio-cli").
		WithShort("Terminal client for the bilancio ledger API").
		WithLong("Queries balances, budgets and goals over the bilancio HTTP API and imports bank statement exports. Server resolution order: --server flag, config file, SERVER_URL environment variable, http://localhost:8084.").
		WithRunFunc(func(params *Params) {
			if err := run(params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(params *Params) error {
	cfg, err := LoadCLIConfig(params.Config)
	if err != nil {
		return err
	}

	client := newAPIClient(resolveServer(params, cfg))

	switch params.Command {
	case "balance":
		return showBalance(client, params.JSON)
	case "transactions":
		return showTransactions(client, params.JSON)
	case "budgets":
		return showBudgets(client, params.JSON)
	case "goals":
		return showGoals(client, params.JSON)
	case "upcoming":
		return showUpcoming(client, params.JSON)
	case "import":
		if params.File == "" {
			return fmt.Errorf("the import command needs --file")
		}
		return runImport(client, params.File, cfg)
	default:
		return fmt.Errorf("unknown command %q", params.Command)
	}
}

func resolveServer(params *Params, cfg *CLIConfig) string {
	if params.Server != "" {
		return params.Server
	}
	if cfg != nil && cfg.ServerURL != "" {
		return cfg.ServerURL
	}
	if env := os.Getenv("SERVER_URL"); env != "" {
		return env
	}
	return "http://localhost:8084"
}
