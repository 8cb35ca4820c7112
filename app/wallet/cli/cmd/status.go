package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

type nodeStatus struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockHeight uint64 `json:"latest_block_height"`
	MempoolCount      int    `json:"mempool_count"`
	KnownPeers        int    `json:"known_peers"`
	ConnectedPeers    int    `json:"connected_peers"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a summary of the node.",
	Run:   statusRun,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(cmd *cobra.Command, args []string) {
	var status nodeStatus
	resp, err := client().R().SetResult(&status).Get("/v1/node/status")
	if err != nil {
		log.Fatal(err)
	}
	if resp.IsError() {
		log.Fatalf("node returned %s: %s", resp.Status(), resp.String())
	}

	fmt.Println("Height:", status.LatestBlockHeight)
	fmt.Println("Tip:", status.LatestBlockHash)
	fmt.Println("Mempool:", status.MempoolCount)
	fmt.Printf("Peers: %d known, %d connected\n", status.KnownPeers, status.ConnectedPeers)
}
