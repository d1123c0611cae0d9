package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/service"
)

// RemindersCmd 提醒运维
func RemindersCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "提醒运维",
	}
	cmd.AddCommand(remindersListCmd(withApp))
	cmd.AddCommand(remindersPurgeCmd(withApp))
	return cmd
}

func remindersListCmd(withApp appRunner) *cobra.Command {
	var (
		failed       bool
		pending      bool
		evaluationID string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出提醒",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			req := &dto.ReminderListRequest{EvaluationID: evaluationID}
			req.PageSize = limit
			if failed {
				req.Failed = &failed
			}
			if pending {
				sent := false
				req.Sent = &sent
			}

			reminders, total, err := app.Service.Reminder.List(cmd.Context(), req, service.SystemCaller())
			if err != nil {
				return fmt.Errorf("查询提醒失败: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(reminders) == 0 {
				fmt.Fprintln(out, "暂无提醒")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\t评估\t用户\t计划时间\t状态\t尝试\t错误")
			for _, r := range reminders {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.EvaluationID, r.UserID, r.ScheduledAt, reminderState(r), r.Attempts, r.LastError)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "共 %d 条\n", total)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "仅显示已放弃的提醒")
	cmd.Flags().BoolVar(&pending, "pending", false, "仅显示未发送的提醒")
	cmd.Flags().StringVar(&evaluationID, "evaluation", "", "按评估过滤")
	cmd.Flags().IntVar(&limit, "limit", 50, "最多显示条数")
	return cmd
}

func remindersPurgeCmd(withApp appRunner) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "删除超过保留天数的已发送提醒",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			if days < 0 {
				return fmt.Errorf("--days 不能为负数")
			}
			n, err := app.Service.Reminder.PurgeSent(cmd.Context(), days, service.SystemCaller())
			if err != nil {
				return fmt.Errorf("清理提醒失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s 已删除 %d 条已发送提醒\n", okColor.Sprint("✓"), n)
			return nil
		}),
	}
	cmd.Flags().IntVar(&days, "days", 0, "保留天数（默认 90）")
	return cmd
}

func reminderState(r dto.ReminderResponse) string {
	switch {
	case r.Sent:
		return okColor.Sprint("已发送")
	case r.Failed:
		return errColor.Sprint("已放弃")
	case r.Attempts > 0:
		return warnColor.Sprint("重试中")
	default:
		return "待发送"
	}
}
