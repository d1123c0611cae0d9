package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
)

// RootCmd koerctl 根命令，子命令通过 open 获取依赖
func RootCmd(open Opener) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "koerctl",
		Short:         "Koerner360 运维命令行",
		Long:          "评估周期对账、提醒扫描、通知清理与节假日导入等运维操作，均以系统身份执行。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认读取 KOERNER_CONFIG 或 ./config.yaml）")

	withApp := appRunner(func(run func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			app, err := open(configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			return run(cmd, args, app)
		}
	})

	root.AddCommand(ReconcileCmd(withApp))
	root.AddCommand(SweepCmd(withApp))
	root.AddCommand(NotificationsCmd(withApp))
	root.AddCommand(RemindersCmd(withApp))
	root.AddCommand(HolidaysCmd(withApp))
	root.AddCommand(MigrateCmd(withApp))
	return root
}

// appRunner 把需要 App 的执行函数包装为 cobra RunE
type appRunner func(run func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error
