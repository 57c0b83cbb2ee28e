package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackbear10000/price-monitor/internal/app"
)

var (
	simulateSymbol    string
	simulatePrice     float64
	simulateReference float64
	simulateType      string
	simulateCondition string
	simulateValue     float64
	simulateLookback  time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一条规则触发并走完通知流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 {
			return errors.New("--price 必须大于 0")
		}
		if simulateValue <= 0 {
			return errors.New("--value 必须大于 0")
		}

		opts := app.SimulateOptions{
			Symbol:    simulateSymbol,
			Price:     simulatePrice,
			Reference: simulateReference,
			RuleType:  simulateType,
			Condition: simulateCondition,
			Value:     simulateValue,
			Lookback:  simulateLookback,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "SIM", "模拟标的符号")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "当前价格")
	simulateCmd.Flags().Float64Var(&simulateReference, "reference", 0, "回看参考价格(趋势规则)")
	simulateCmd.Flags().StringVar(&simulateType, "type", "threshold", "规则类型 threshold|trend")
	simulateCmd.Flags().StringVar(&simulateCondition, "condition", "above", "触发条件 above|below|increase|decrease")
	simulateCmd.Flags().Float64Var(&simulateValue, "value", 0, "阈值或趋势幅度(百分比)")
	simulateCmd.Flags().DurationVar(&simulateLookback, "lookback", time.Hour, "趋势规则回看窗口")
}
