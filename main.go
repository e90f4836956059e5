/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/cmd"

func main() {
	cmd.Execute()
}
