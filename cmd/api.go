package cmd

import (
	"context"
	"fmt"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gutils "github.com/Laisky/go-utils/v6"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/searxng-mcp/internal/mcp"
	"github.com/Laisky/searxng-mcp/internal/scrape"
	"github.com/Laisky/searxng-mcp/internal/web"
	"github.com/Laisky/searxng-mcp/library/config"
	"github.com/Laisky/searxng-mcp/library/fetch"
	"github.com/Laisky/searxng-mcp/library/log"
	"github.com/Laisky/searxng-mcp/library/search/searxng"
)

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `serve the MCP endpoints and the plain tool API over HTTP`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		settings := config.Load()
		mcpServer, err := buildMCPServer(settings)
		if err != nil {
			log.Logger.Panic("build mcp server", zap.Error(err))
		}

		log.Logger.Info("searxng mcp bridge configured",
			zap.String("searxng_url", settings.BaseURL),
			zap.Strings("engines", settings.Engines),
			zap.Int("max_results", settings.MaxResults),
			zap.Int("word_limit", settings.WordLimit),
			zap.Duration("timeout", settings.Timeout),
			zap.Bool("use_proxy", settings.UseProxy),
		)

		web.RunServer(listenAddr(settings), mcpServer)
	},
}

// buildMCPServer wires the search client, page fetcher, orchestrator and
// dispatcher described by settings.
func buildMCPServer(settings config.Settings) (*mcp.Server, error) {
	httpClient, err := gutils.NewHTTPClient(
		gutils.WithHTTPClientTimeout(settings.Timeout),
	)
	if err != nil {
		return nil, errors.Wrap(err, "new searxng http client")
	}

	client := searxng.New(settings.BaseURL,
		searxng.WithHTTPClient(httpClient),
		searxng.WithEngines(settings.Engines),
		searxng.WithMaxResults(settings.MaxResults),
		searxng.WithCircuitBreaker(settings.BreakerMaxFailures, settings.BreakerOpenTimeout),
		searxng.WithLogger(log.Logger.Named("searxng")),
	)

	fetchOpts := []fetch.Option{fetch.WithLogger(log.Logger.Named("fetch"))}
	if settings.UseProxy {
		fetchOpts = append(fetchOpts, fetch.WithProxy(settings.ProxyAddress))
	}
	fetcher, err := fetch.New(fetchOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "new page fetcher")
	}

	orchestrator := scrape.New(fetcher, settings.Timeout, settings.WordLimit,
		scrape.WithLogger(log.Logger.Named("scrape")),
	)

	dispatcher, err := mcp.NewDispatcher(client, orchestrator, settings.BaseURL, settings.MaxResults,
		mcp.WithDispatcherLogger(log.Logger.Named("dispatcher")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "new dispatcher")
	}

	mcpServer, err := mcp.NewServer(dispatcher, log.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "new mcp server")
	}

	return mcpServer, nil
}

// listenAddr prefers the --listen flag and falls back to the configured port on all interfaces.
func listenAddr(settings config.Settings) string {
	if addr := gconfig.Shared.GetString("listen"); addr != "" {
		return addr
	}
	return fmt.Sprintf("0.0.0.0:%d", settings.Port)
}

func init() {
	rootCMD.AddCommand(apiCMD)
}
