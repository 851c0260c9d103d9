package main

import (
	"crypto/rand"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/eigerco/beacon/internal/crypto"
	"github.com/eigerco/beacon/internal/crypto/ed25519"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "generate a network key and an operator key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			operatorKey, operator, err := crypto.GenerateOperatorKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "network_key: %s\n", ed25519.SeedHex(priv))
			fmt.Fprintf(out, "network_public_key: %x\n", []byte(pub))
			fmt.Fprintf(out, "operator_key: %x\n", ethcrypto.FromECDSA(operatorKey))
			fmt.Fprintf(out, "operator: %s\n", operator.Hex())
			return nil
		},
	}
}
