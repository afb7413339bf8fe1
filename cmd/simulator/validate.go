package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:     "validate",
	Short:   "Check a configuration file",
	GroupID: "sim",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sats, err := cfg.Satellites()
		if err != nil {
			return err
		}
		stations, err := cfg.Stations()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d satellites, %d ground stations, isl=%s router=%s\n",
			len(sats), len(stations), cfg.InterSatelliteLinks.Protocol, cfg.Router.Protocol)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
