package main

import "github.com/kobaltchain/kobalt/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
