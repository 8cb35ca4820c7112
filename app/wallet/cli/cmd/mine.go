package cmd

import (
	"fmt"
	"log"

	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var (
	privateURL string
	minerID    string
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Control mining on the node.",
}

var mineStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start mining with the wallet key as the reward address.",
	Run:   mineStartRun,
}

var mineStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the miner identity.",
	Run:   mineStopRun,
}

var mineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of every miner identity.",
	Run:   mineStatusRun,
}

func init() {
	rootCmd.AddCommand(mineCmd)
	mineCmd.AddCommand(mineStartCmd, mineStopCmd, mineStatusCmd)
	mineCmd.PersistentFlags().StringVar(&privateURL, "private-url", "http://localhost:8180", "Url of the node's private api.")
	mineCmd.PersistentFlags().StringVarP(&minerID, "miner", "m", "wallet", "Miner identity.")
}

func mineStartRun(cmd *cobra.Command, args []string) {
	privateKey, err := signature.LoadKey(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	body := struct {
		MinerID string `json:"miner_id"`
		Address string `json:"address"`
	}{
		MinerID: minerID,
		Address: signature.Address(privateKey),
	}

	resp, err := privateClient().R().SetBody(body).Post("/v1/mining/start")
	if err != nil {
		log.Fatal(err)
	}
	if resp.IsError() {
		log.Fatalf("node returned %s: %s", resp.Status(), resp.String())
	}

	fmt.Println("Mining started for:", body.Address)
}

func mineStopRun(cmd *cobra.Command, args []string) {
	resp, err := privateClient().R().Post("/v1/mining/stop/" + minerID)
	if err != nil {
		log.Fatal(err)
	}
	if resp.IsError() {
		log.Fatalf("node returned %s: %s", resp.Status(), resp.String())
	}

	fmt.Println("Mining stopped")
}

func mineStatusRun(cmd *cobra.Command, args []string) {
	var statuses []minerStatus
	resp, err := privateClient().R().SetResult(&statuses).Get("/v1/mining/status")
	if err != nil {
		log.Fatal(err)
	}
	if resp.IsError() {
		log.Fatalf("node returned %s: %s", resp.Status(), resp.String())
	}

	for _, status := range statuses {
		state := "idle"
		if status.Mining {
			state = "mining"
		}
		fmt.Printf("%s  state[%s]  address[%s]  blocks[%d]  hashrate[%.0f h/s]\n",
			status.MinerID, state, status.Address, status.BlocksMined, status.HashRate)
	}
}

type minerStatus struct {
	MinerID     string  `json:"miner_id"`
	Address     string  `json:"address"`
	Mining      bool    `json:"mining"`
	BlocksMined uint64  `json:"blocks_mined"`
	HashRate    float64 `json:"hash_rate"`
}
