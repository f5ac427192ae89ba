package app

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/hitoshi/touristguard/internal/config"
)

// サブコマンド名
const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe = "serve"
	// CommandWorker は補助送信の配信ワーカーとして起動することを示す。
	CommandWorker = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck = "healthcheck"
	// CommandCreateAdmin は管理者アカウントを作成することを示す。
	CommandCreateAdmin = "create-admin"
	// CommandResetData はアラート記録を一括削除することを示す。
	CommandResetData = "reset-data"
)

// NewRootCommand はtouristguardのルートコマンドを構築する。
// サブコマンドなしで実行した場合はserveとして動作する。
// wはログの出力先。
func NewRootCommand(w io.Writer) *cobra.Command {
	// withConfig は設定を読み込んでからfnを実行するRunEを返す。
	withConfig := func(name string, fn func(cfg *config.Config) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			logStart(name, cfg)
			return fn(cfg)
		}
	}

	root := &cobra.Command{
		Use:           "touristguard",
		Short:         "Tourist safety SOS alert service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          withConfig(CommandServe, runServe),
	}

	serveCmd := &cobra.Command{
		Use:   CommandServe,
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  withConfig(CommandServe, runServe),
	}

	workerCmd := &cobra.Command{
		Use:   CommandWorker,
		Short: "Deliver queued supplementary SMS sends from Redis",
		Args:  cobra.NoArgs,
		RunE:  withConfig(CommandWorker, runWorker),
	}

	migrateCmd := &cobra.Command{
		Use:   CommandMigrate,
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  withConfig(CommandMigrate, runMigrate),
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	healthcheckCmd := &cobra.Command{
		Use:   CommandHealthcheck,
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runHealthcheck(healthcheckPort())
		},
	}

	var username, password string
	createAdminCmd := &cobra.Command{
		Use:   CommandCreateAdmin,
		Short: "Create an admin account, or reset its password if it exists",
		Args:  cobra.NoArgs,
		RunE: withConfig(CommandCreateAdmin, func(cfg *config.Config) error {
			return runCreateAdmin(cfg, username, password)
		}),
	}
	createAdminCmd.Flags().StringVar(&username, "username", "admin", "admin username")
	createAdminCmd.Flags().StringVar(&password, "password", "", "admin password")
	createAdminCmd.MarkFlagRequired("password")

	var confirmed bool
	resetDataCmd := &cobra.Command{
		Use:   CommandResetData,
		Short: "Delete every SOS alert record",
		Args:  cobra.NoArgs,
		RunE: withConfig(CommandResetData, func(cfg *config.Config) error {
			return runResetData(cfg, confirmed)
		}),
	}
	resetDataCmd.Flags().BoolVar(&confirmed, "yes", false, "confirm deletion of all alert records")

	root.AddCommand(serveCmd, workerCmd, migrateCmd, healthcheckCmd, createAdminCmd, resetDataCmd)
	return root
}
