/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/router"
)

var rewriteUser string

// rewriteCmd represents the rewrite command
var rewriteCmd = &cobra.Command{
	Use:   "rewrite <calldata>",
	Short: "rewrite router execute calldata for proxy execution",
	Long: `rewrite router execute calldata so the proxy can run it on the user's
behalf: permits stripped, payer flags cleared, outputs routed to the user`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(rewriteUser) {
			return fmt.Errorf("--user %q is not a valid address", rewriteUser)
		}

		data, err := hexutil.Decode(args[0])
		if err != nil {
			return fmt.Errorf("calldata is not valid hex: %w", err)
		}

		result, err := router.RewriteExecute(data, common.HexToAddress(rewriteUser), nil)
		if err != nil {
			return err
		}

		fmt.Printf("commands:        %d\n", len(result.Commands))
		fmt.Printf("permits removed: %d\n", result.PermitsRemoved)
		fmt.Printf("native input:    %t\n", result.NativeInput)
		fmt.Printf("keep in router:  %t\n", result.KeepInRouter)
		for _, skipped := range result.Skipped {
			fmt.Printf("skipped [%d] %s: %v\n", skipped.Index, skipped.Command, skipped.Err)
		}
		fmt.Printf("%s\n", hexutil.Encode(result.Data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rewriteCmd)
	rewriteCmd.Flags().StringVarP(&rewriteUser, "user", "u", "", "address the rewritten outputs are routed to")
	_ = rewriteCmd.MarkFlagRequired("user")
}
