package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/service"
)

// HolidaysCmd 节假日运维
func HolidaysCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "节假日运维",
	}
	cmd.AddCommand(holidaysImportCmd(withApp))
	return cmd
}

func holidaysImportCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.ics|url>",
		Short: "从 ICS 文件或订阅地址导入节假日",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			source := args[0]

			var (
				result *dto.ImportHolidaysResponse
				err    error
			)
			if isRemoteCalendar(source) {
				result, err = app.Service.Holiday.ImportURL(cmd.Context(), source, service.SystemCaller())
			} else {
				f, openErr := os.Open(source)
				if openErr != nil {
					return fmt.Errorf("打开日历文件失败: %w", openErr)
				}
				defer f.Close()
				result, err = app.Service.Holiday.Import(cmd.Context(), f, service.SystemCaller())
			}
			if err != nil {
				return fmt.Errorf("导入节假日失败: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s 导入 %d 个节假日，跳过 %d 个已存在日期\n",
				okColor.Sprint("✓"), result.Imported, result.Skipped)
			return nil
		}),
	}
}

func isRemoteCalendar(source string) bool {
	lower := strings.ToLower(source)
	for _, prefix := range []string{"http://", "https://", "webcal://"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
