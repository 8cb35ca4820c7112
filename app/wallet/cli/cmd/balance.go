package cmd

import (
	"fmt"
	"log"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

type balanceInfo struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance and spendable outputs.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := signature.LoadKey(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	address := signature.Address(privateKey)
	fmt.Println("For Address:", address)

	var balance balanceInfo
	resp, err := client().R().SetResult(&balance).Get("/v1/balance/" + address)
	if err != nil {
		log.Fatal(err)
	}
	if resp.IsError() {
		log.Fatalf("node returned %s: %s", resp.Status(), resp.String())
	}

	fmt.Println("Balance:", balance.Balance)

	var utxos []ledger.UTXO
	resp, err = client().R().SetResult(&utxos).Get("/v1/utxos/" + address)
	if err != nil {
		log.Fatal(err)
	}
	if resp.IsError() {
		log.Fatalf("node returned %s: %s", resp.Status(), resp.String())
	}

	for _, utxo := range utxos {
		fmt.Printf("  %s:%d  value[%d]  height[%d]\n", utxo.TxID, utxo.OutputIndex, utxo.Value, utxo.BlockHeight)
	}
}
