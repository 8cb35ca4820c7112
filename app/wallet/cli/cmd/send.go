package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var (
	sendTo     string
	sendAmount uint64
	sendFee    uint64
	sendRBF    bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send value to an address.",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendTo, "to", "t", "", "Recipient address.")
	sendCmd.Flags().Uint64VarP(&sendAmount, "value", "v", 0, "Amount to send.")
	sendCmd.Flags().Uint64VarP(&sendFee, "fee", "f", 1, "Fee to pay.")
	sendCmd.Flags().BoolVar(&sendRBF, "rbf", false, "Signal replace-by-fee on the inputs.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("value")
}

func sendRun(cmd *cobra.Command, args []string) {
	privateKey, err := signature.LoadKey(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}
	address := signature.Address(privateKey)

	var utxos []ledger.UTXO
	resp, err := client().R().SetResult(&utxos).Get("/v1/utxos/" + address)
	if err != nil {
		log.Fatal(err)
	}
	if resp.IsError() {
		log.Fatalf("node returned %s: %s", resp.Status(), resp.String())
	}

	// Pick outputs until the amount plus the fee is covered.
	sequence := ledger.SequenceFinal
	if sendRBF {
		sequence = ledger.SequenceFinal - 1
	}

	var total uint64
	var inputs []ledger.TxInput
	for _, utxo := range utxos {
		inputs = append(inputs, ledger.TxInput{
			PreviousTxID: utxo.TxID,
			OutputIndex:  utxo.OutputIndex,
			Sequence:     sequence,
		})
		total += utxo.Value
		if total >= sendAmount+sendFee {
			break
		}
	}
	if total < sendAmount+sendFee {
		log.Fatalf("insufficient funds: have %d, need %d", total, sendAmount+sendFee)
	}

	outputs := []ledger.TxOutput{
		{Value: sendAmount, Address: sendTo},
	}
	if change := total - sendAmount - sendFee; change > 0 {
		outputs = append(outputs, ledger.TxOutput{Value: change, Address: address})
	}

	tx := ledger.Tx{
		Inputs:    inputs,
		Outputs:   outputs,
		TimeStamp: uint64(time.Now().UTC().Unix()),
		Fee:       sendFee,
	}
	tx.TxID = tx.ComputeID()

	// Sign the transaction id into every input.
	digest, err := hexutil.Decode(tx.TxID)
	if err != nil {
		log.Fatal(err)
	}
	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		log.Fatal(err)
	}
	for i := range tx.Inputs {
		tx.Inputs[i].ScriptSig = hexutil.Encode(sig)
	}
	tx.TxID = tx.ComputeID()

	var result struct {
		Status string `json:"status"`
		TxID   string `json:"txid"`
	}
	resp, err = client().R().SetBody(tx).SetResult(&result).Post("/v1/tx/submit")
	if err != nil {
		log.Fatal(err)
	}
	if resp.IsError() {
		log.Fatalf("node returned %s: %s", resp.Status(), resp.String())
	}

	fmt.Println("Status:", result.Status)
	fmt.Println("TxID:", result.TxID)
}
