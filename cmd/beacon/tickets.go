package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eigerco/beacon/internal/sortition"
)

var (
	flagSeed       string
	flagOperator   string
	flagWeight     uint64
	flagPoolWeight uint64
)

func newTicketsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "print the tickets of an operator that pass the natural threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			seed, err := parseSeed(flagSeed)
			if err != nil {
				return err
			}
			if !common.IsHexAddress(flagOperator) {
				return fmt.Errorf("invalid operator address %q", flagOperator)
			}
			if flagPoolWeight < flagWeight {
				return errors.New("pool weight is less than the operator weight")
			}

			threshold := sortition.NaturalThreshold(cfg.Params.GroupSize, flagPoolWeight)
			tickets := sortition.FilterBelow(
				sortition.GenerateTickets(seed, common.HexToAddress(flagOperator), flagWeight),
				threshold,
			)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "threshold %s\n", threshold.Hex())
			for _, t := range tickets {
				fmt.Fprintf(out, "%d\t%s\n", t.VirtualIndex, t.Value.Hex())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagSeed, "seed", "", "selection seed, decimal or 0x prefixed hex")
	cmd.Flags().StringVar(&flagOperator, "operator", "", "operator address")
	cmd.Flags().Uint64Var(&flagWeight, "weight", 0, "operator weight")
	cmd.Flags().Uint64Var(&flagPoolWeight, "pool-weight", 0, "total weight of the sortition pool")
	_ = cmd.MarkFlagRequired("seed")
	_ = cmd.MarkFlagRequired("operator")
	_ = cmd.MarkFlagRequired("weight")
	_ = cmd.MarkFlagRequired("pool-weight")
	return cmd
}

func parseSeed(s string) (uint256.Int, error) {
	var (
		seed *uint256.Int
		err  error
	)
	if strings.HasPrefix(s, "0x") {
		seed, err = uint256.FromHex(s)
	} else {
		seed, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return uint256.Int{}, fmt.Errorf("invalid seed %q: %w", s, err)
	}
	return *seed, nil
}
