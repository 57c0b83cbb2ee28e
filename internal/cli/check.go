package cli

import (
	"github.com/spf13/cobra"

	"github.com/blackbear10000/price-monitor/internal/app"
)

var (
	checkSubject string
	checkNotify  bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one evaluation pass and print fired alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.CheckOptions{
			SubjectID: checkSubject,
			Notify:    checkNotify,
		}
		return getApp().Check(cmd.Context(), opts)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkSubject, "subject", "", "Evaluate a single subject instead of all")
	checkCmd.Flags().BoolVar(&checkNotify, "notify", false, "Deliver fired alerts through the configured channels")
}
