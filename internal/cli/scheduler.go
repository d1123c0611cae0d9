package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"koerner360/backend/internal/service"
)

// SweepCmd 执行一次强制扫描（忽略提醒配置中的总开关）
func SweepCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "立即执行一次提醒扫描",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			report, err := app.Service.Scheduler.Sweep(cmd.Context(), service.SystemCaller())
			if err != nil {
				return fmt.Errorf("扫描失败: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s 扫描完成 %s ~ %s\n", okColor.Sprint("✓"), report.StartedAt, report.FinishedAt)
			fmt.Fprintf(out, "  对账变更: %d  异常: %d\n", report.Reconciled, report.Anomalies)
			fmt.Fprintf(out, "  新建提醒: %d  已发送: %d  失败: %d  跳过: %d\n",
				report.Created, report.Sent, report.Failed, report.Skipped)
			fmt.Fprintf(out, "  新通知: %d  清理通知: %d\n", report.Notifications, report.Purged)
			for _, e := range report.Errors {
				fmt.Fprintf(out, "%s %s\n", errColor.Sprint("✗"), e)
			}
			if len(report.Errors) > 0 {
				return fmt.Errorf("扫描存在 %d 个失败步骤", len(report.Errors))
			}
			return nil
		}),
	}
}
