package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"koerner360/backend/pkg/database"
)

// MigrateCmd 执行数据库迁移并输出当前版本
func MigrateCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
			}
			if err := database.RunMigrations(sqlDB, app.Logger); err != nil {
				return err
			}

			version, dirty, err := database.MigrationVersion(sqlDB)
			if err != nil {
				return fmt.Errorf("读取迁移版本失败: %w", err)
			}
			if dirty {
				fmt.Fprintf(cmd.OutOrStdout(), "%s 当前版本 %d（dirty，需人工处理）\n", warnColor.Sprint("!"), version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s 当前版本 %d\n", okColor.Sprint("✓"), version)
			return nil
		}),
	}
}
