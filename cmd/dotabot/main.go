// Бинарь бота. Основной режим — run; остальные подкоманды делают одно
// разовое действие с тем же конфигом и кэшем и печатают результат в stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/woreworewo/dota/internal/bot"
	"github.com/woreworewo/dota/internal/config"
	"github.com/woreworewo/dota/internal/logging"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "dotabot",
	Short:        "Бот дота-статистики: кэш матчей, присутствие в Steam, чат",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "conf/config.yaml", "путь к конфигу")

	refreshCmd.Flags().Bool("full", false, "полный цикл вместо инкрементального")

	rootCmd.AddCommand(runCmd, refreshCmd, reportCmd, playedCmd, worstCmd, lastCmd)
}

// setup — общий для всех подкоманд запуск: конфиг, логгер, бот.
func setup() (*bot.DotaBot, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return bot.New(cfg)
}

func signalCtx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Запустить бота и работать до SIGINT/SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := setup()
		if err != nil {
			return err
		}

		if b.Chat().HasLogChannel() {
			hook := &logging.ChatHook{}
			hook.SetSender(b.Chat().SayLog)
			logging.Hook(hook)
		}

		ctx, stop := signalCtx()
		defer stop()

		if err := b.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logging.Info().Msg("bot: stopped")
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Прогнать один цикл обновления кэша и выйти",
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")
		b, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signalCtx()
		defer stop()
		b.RefreshOnce(ctx, full)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Посчитать ежедневную сводку (с подрезкой окна) и напечатать",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := setup()
		if err != nil {
			return err
		}
		fmt.Println(b.ReportText())
		return nil
	},
}

var playedCmd = &cobra.Command{
	Use:   "played [дней]",
	Short: "Напечатать наигранное по закрытым сессиям окна",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := setup()
		if err != nil {
			return err
		}
		days := 0
		if len(args) == 1 {
			if days, err = strconv.Atoi(args[0]); err != nil || days <= 0 {
				return fmt.Errorf("дней должно быть положительным числом, не %q", args[0])
			}
		}
		fmt.Println(b.PlayedText(days))
		return nil
	},
}

var worstCmd = &cobra.Command{
	Use:   "worst",
	Short: "Напечатать антирейтинг по закэшированным матчам",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := setup()
		if err != nil {
			return err
		}
		fmt.Println(b.WorstText())
		return nil
	},
}

var lastCmd = &cobra.Command{
	Use:   "last [id|имя]",
	Short: "Напечатать сводку последнего матча (кэша или игрока)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := setup()
		if err != nil {
			return err
		}
		arg := ""
		if len(args) == 1 {
			arg = args[0]
		}
		fmt.Println(b.LastText(arg))
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
