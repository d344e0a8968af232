// Package cmd wires up the sorbet-lsp command line.
package cmd

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/donaldong/sorbet/lsp"
)

var rootCmd = &cobra.Command{
	Use:   "sorbet-lsp",
	Short: "Incremental Ruby typechecking language server",
	Long: `sorbet-lsp keeps an always-current, typechecked view of a Ruby
workspace under a stream of editor edits and answers interactive queries
against it. It speaks Language Server Protocol v3.13 over stdio by default,
or over a websocket with --addr.`,
	RunE: runServer,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("addr", "", "listen for websocket connections on this address instead of serving stdio")
	flags.String("root", "", "workspace root (defaults to the rootUri sent by the client)")
	flags.Bool("disable-fast-path", false, "typecheck every edit on the slow path")
	flags.Bool("document-symbols", true, "advertise documentSymbol support")
	flags.Bool("document-highlight", true, "advertise documentHighlight support")
	flags.Bool("signature-help", true, "advertise signatureHelp support")
	flags.Bool("quickfix", true, "advertise quickfix code actions")
	flags.Bool("verbose", false, "log debug detail")
	flags.Int("workers", 0, "worker pool size (0 = number of CPUs)")

	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("SORBET_LSP")
	viper.AutomaticEnv()
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr, "[sorbet-lsp] ", log.LstdFlags)

	config := lsp.NewConfig(logger)
	config.RootPath = viper.GetString("root")
	config.DisableFastPath = viper.GetBool("disable-fast-path")
	config.DocumentSymbolEnabled = viper.GetBool("document-symbols")
	config.DocumentHighlightEnabled = viper.GetBool("document-highlight")
	config.SignatureHelpEnabled = viper.GetBool("signature-help")
	config.QuickFixEnabled = viper.GetBool("quickfix")
	config.Verbose = viper.GetBool("verbose")
	config.Workers = viper.GetInt("workers")

	ctx := context.Background()
	if addr := viper.GetString("addr"); addr != "" {
		return lsp.ListenAndServeWebsocket(ctx, config, addr)
	}
	return lsp.RunStdio(ctx, config)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
