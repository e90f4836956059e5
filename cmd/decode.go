/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/router"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <calldata>",
	Short: "decode router execute calldata",
	Long:  `decode router execute calldata into its command list and swap parameters`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hexutil.Decode(args[0])
		if err != nil {
			return fmt.Errorf("calldata is not valid hex: %w", err)
		}

		call, err := router.DecodeExecute(data)
		if err != nil {
			return err
		}

		if call.Deadline != nil {
			fmt.Printf("deadline: %s\n", call.Deadline)
		}
		for i, c := range call.Commands {
			fmt.Printf("[%d] %s\n", i, c)
			if !c.Op().IsFlatSwap() {
				continue
			}
			swap, err := router.DecodeSwap(c.Op(), call.Inputs[i])
			if err != nil {
				fmt.Printf("    undecodable input: %v\n", err)
				continue
			}
			pp.Println(swap)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
