// Package main 提供 natt 命令行入口
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	natt "github.com/dep2p/go-natt"
	"github.com/dep2p/go-natt/internal/util/logger"
)

var log = logger.Logger("natt.cmd")

func main() {
	app := &cli.App{
		Name:    "natt",
		Usage:   "NAT behavior classification and mediated connection establishment",
		Version: natt.Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "输出调试日志",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger.SetGlobalLevel(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			classifyCommand(),
			probeServerCommand(),
			techniquesCommand(),
			connectCommand(),
			listenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// signalContext 收到 SIGINT/SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// configFlag 所有需要节点配置的命令共用
var configFlag = &cli.PathFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "JSON 配置文件路径",
}

func nodeOptions(c *cli.Context) []natt.Option {
	var opts []natt.Option
	if path := c.Path("config"); path != "" {
		opts = append(opts, natt.WithConfigFile(path))
	}
	if c.IsSet("peer") {
		opts = append(opts, natt.WithPeerID(c.String("peer")))
	}
	if c.IsSet("server") {
		opts = append(opts, natt.WithProbeServer(c.String("server")))
	}
	return opts
}
