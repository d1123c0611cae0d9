package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ReconcileCmd 按当前时间推进周期状态并报告重叠异常
func ReconcileCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "周期状态对账",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			result, err := app.Service.Period.Reconcile(cmd.Context())
			if err != nil {
				return fmt.Errorf("周期对账失败: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s 状态变更 %d 个周期\n", okColor.Sprint("✓"), result.Changed)
			for _, a := range result.Anomalies {
				fmt.Fprintf(out, "%s %s (%s) %s\n", warnColor.Sprint("!"), a.Period.Name, a.Period.ID, a.Reason)
				for _, other := range a.ConflictsWith {
					fmt.Fprintf(out, "    与 %s (%s) %s ~ %s 重叠\n", other.Name, other.ID, other.StartsAt, other.EndsAt)
				}
			}
			return nil
		}),
	}
}
