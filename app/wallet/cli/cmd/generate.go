package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new private key.",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	privateKey, err := signature.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Dir(getPrivateKeyPath()), 0755); err != nil {
		log.Fatal(err)
	}

	if err := signature.SaveKey(getPrivateKeyPath(), privateKey); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Address:", signature.Address(privateKey))
}
