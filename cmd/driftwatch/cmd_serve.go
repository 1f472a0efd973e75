package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/driftwatch-net/driftwatch/pkg/auditor"
	"github.com/driftwatch-net/driftwatch/pkg/health"
	"github.com/driftwatch-net/driftwatch/pkg/server"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		vlt, err := openVault()
		if err != nil {
			return err
		}

		var redisClient *redis.Client
		if cfg.RedisAddr != "" {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			if err := redisClient.Ping(cmd.Context()).Err(); err != nil {
				util.Warnf("redis unavailable at %s, overview cache disabled: %v", cfg.RedisAddr, err)
				redisClient = nil
			}
		}

		srvCfg := server.DefaultConfig()
		srvCfg.Listen = cfg.Listen
		srvCfg.APIToken = cfg.APIToken
		srvCfg.APITokenHeader = cfg.APITokenHeader
		srvCfg.AdminToken = cfg.AdminToken
		srvCfg.SSEIntervalSecs = cfg.SSEInterval

		srv := server.New(server.Options{
			Config:    srvCfg,
			Store:     st,
			Vault:     vlt,
			Overview:  &health.Overview{Store: st, Redis: redisClient},
			Auditor:   newAuditor(st, vlt),
			Scanner:   newScanner(st, vlt),
			Baselines: &auditor.BaselineStore{Dir: cfg.BaselineDir},
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx)
	},
}
