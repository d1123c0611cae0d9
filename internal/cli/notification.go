package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"koerner360/backend/internal/service"
)

// NotificationsCmd 通知运维
func NotificationsCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "通知运维",
	}
	cmd.AddCommand(notificationsPurgeCmd(withApp))
	return cmd
}

func notificationsPurgeCmd(withApp appRunner) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "删除超过保留天数的已读通知",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			if days < 0 {
				return fmt.Errorf("--days 不能为负数")
			}
			if days == 0 {
				days = app.Config.Scheduler.NotificationRetainDays
			}
			n, err := app.Service.Notification.Cleanup(cmd.Context(), days, service.SystemCaller())
			if err != nil {
				return fmt.Errorf("清理通知失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s 已删除 %d 条已读通知\n", okColor.Sprint("✓"), n)
			return nil
		}),
	}
	cmd.Flags().IntVar(&days, "days", 0, "保留天数（默认取 scheduler.notification_retain_days）")
	return cmd
}
