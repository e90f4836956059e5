package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	config  = "./config/bpx.yaml"
	rootCmd = &cobra.Command{
		Use:   "bpx",
		Short: "Balance proxy CLI",
		Long: `CLI to inspect and rewrite router calldata for the balance proxy.

Such as "bpx decode <calldata>" or "bpx rewrite <calldata>" and so on
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&config, "config", "c", "config/bpx.yaml", "Path to config file")
}
