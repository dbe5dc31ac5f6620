package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var debug bool
	cmd := &cobra.Command{
		Use:   "example",
		Short: "Serve a demo host page with an embedded forum",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			router := newRouter(logger, cfg)
			router.Mount("/debug", middleware.Profiler())

			logger.Info("ready",
				zap.String("addr", cfg.Addr),
				zap.String("prefix", cfg.Prefix),
				zap.Int64("forumID", cfg.ForumID),
			)

			return http.ListenAndServe(cfg.Addr, router)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flags.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "origin pages are rendered under")
	flags.StringVar(&cfg.SDKURL, "sdk-url", cfg.SDKURL, "embed script url, the bundled stub when empty")
	flags.Int64Var(&cfg.ForumID, "forum", cfg.ForumID, "forum id to embed")
	flags.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "path prefix the forum is mounted under")
	flags.DurationVar(&cfg.PreviewTimeout, "preview-timeout", cfg.PreviewTimeout, "how long /preview waits for the forum")
	flags.BoolVar(&debug, "debug", false, "development logging")

	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
