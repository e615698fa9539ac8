package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	natt "github.com/dep2p/go-natt"
	"github.com/dep2p/go-natt/internal/core/classifier"
	"github.com/dep2p/go-natt/internal/core/mediator"
	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              classify
// ════════════════════════════════════════════════════════════════════════════

func classifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "classify",
		Usage: "对本地 NAT 的映射与过滤行为分类",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "server",
				Aliases:  []string{"s"},
				Usage:    "探测服务器主地址 host:port",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "本地源端口，0 表示临时分配",
			},
			&cli.DurationFlag{
				Name:  "filtering-timeout",
				Usage: "过滤测试每个阶段的等待时间",
				Value: classifier.DefaultConfig().FilteringTimeout,
			},
		},
		Action: classify,
	}
}

func classify(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	cfg := classifier.DefaultConfig()
	cfg.Server = c.String("server")
	cfg.FilteringTimeout = c.Duration("filtering-timeout")
	cls, err := classifier.New(cfg)
	if err != nil {
		return err
	}

	port := c.Int("port")
	if port == 0 {
		ln, err := reuseport.ListenPort(ctx, 0)
		if err != nil {
			return fmt.Errorf("allocate port: %w", err)
		}
		port = ln.Addr().(*net.TCPAddr).Port
		_ = ln.Close()
	}

	start := time.Now()
	b := cls.Classify(ctx, port)
	fmt.Printf("source port: %d\n", port)
	fmt.Printf("mapping:     %s\n", b.Mapping)
	fmt.Printf("filtering:   %s\n", b.Filtering)

	if ep, err := cls.Discover(ctx, port); err == nil {
		fmt.Printf("private:     %s\n", ep.Private)
		fmt.Printf("public:      %s\n", ep.Public)
	} else {
		log.Debug("获取公网端点失败", "err", err)
	}
	fmt.Printf("elapsed:     %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              probe-server
// ════════════════════════════════════════════════════════════════════════════

func probeServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe-server",
		Usage: "运行 RFC 5780 TCP 参考探测服务器",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "primary",
				Usage: "主地址 ip:port",
				Value: "0.0.0.0:3478",
			},
			&cli.StringFlag{
				Name:  "alternate",
				Usage: "备用地址 ip:port，IP 与端口都需与主地址不同",
			},
		},
		Action: probeServer,
	}
}

func probeServer(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	cfg := classifier.DefaultServerConfig()
	cfg.Primary = c.String("primary")
	cfg.Alternate = c.String("alternate")

	srv, err := classifier.NewProbeServer(cfg)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("probe server listening on %s\n", srv.Addr())

	<-ctx.Done()
	return srv.Close()
}

// ════════════════════════════════════════════════════════════════════════════
//                              techniques
// ════════════════════════════════════════════════════════════════════════════

func techniquesCommand() *cli.Command {
	return &cli.Command{
		Name:   "techniques",
		Usage:  "列出已启用的穿透技术与决策表",
		Flags:  []cli.Flag{configFlag},
		Action: techniques,
	}
}

func techniques(c *cli.Context) error {
	node, err := natt.New(nodeOptions(c)...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSETUP\tTIMEOUT\tSITUATIONS")
	for _, md := range node.Techniques() {
		situations := make([]string, 0, len(md.Situations))
		for _, s := range md.Situations {
			situations = append(situations, s.String())
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			md.ID, md.String(), md.SetupTime, md.ResponseTimeout, strings.Join(situations, " "))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SITUATION\tTECHNIQUES")
	for _, rule := range node.Registry().Table().Rules() {
		names := make([]string, 0, len(rule.Techniques))
		for _, t := range rule.Techniques {
			names = append(names, t.Metadata().Name)
		}
		fmt.Fprintf(w, "%s\t%s\n", rule.Situation, strings.Join(names, ","))
	}
	return w.Flush()
}

// ════════════════════════════════════════════════════════════════════════════
//                              connect / listen
// ════════════════════════════════════════════════════════════════════════════

var (
	mediatorFlag = &cli.StringFlag{
		Name:     "mediator",
		Aliases:  []string{"m"},
		Usage:    "中介地址 host:port",
		Required: true,
	}
	peerFlag = &cli.StringFlag{
		Name:  "peer",
		Usage: "本节点在中介上的标识",
	}
	serverFlag = &cli.StringFlag{
		Name:  "server",
		Usage: "探测服务器主地址 host:port，为空时不分类",
	}
)

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "经中介连接目标节点，并把标准输入输出接到连接上",
		ArgsUsage: "<target-peer>",
		Flags:     []cli.Flag{configFlag, mediatorFlag, peerFlag, serverFlag},
		Action:    connect,
	}
}

func connect(c *cli.Context) error {
	target := c.Args().First()
	if target == "" {
		return cli.Exit("missing target peer", 2)
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	node, err := natt.Start(ctx, nodeOptions(c)...)
	if err != nil {
		return err
	}
	defer node.Close()

	ch, err := mediator.Dial(ctx, c.String("mediator"))
	if err != nil {
		return err
	}
	defer ch.Close()

	conn, err := node.Connect(ctx, types.PeerID(target), ch)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintf(os.Stderr, "connected to %s via %s\n", target, conn.RemoteAddr())

	return pipe(ctx, conn)
}

func listenCommand() *cli.Command {
	return &cli.Command{
		Name:   "listen",
		Usage:  "注册为目标端，把每个入站连接的数据写到标准输出",
		Flags:  []cli.Flag{configFlag, mediatorFlag, peerFlag, serverFlag},
		Action: listen,
	}
}

func listen(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	node, err := natt.Start(ctx, nodeOptions(c)...)
	if err != nil {
		return err
	}
	defer node.Close()

	ch, err := mediator.Dial(ctx, c.String("mediator"))
	if err != nil {
		return err
	}
	defer ch.Close()

	target, err := node.Listen(ctx, ch)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "registered, behavior %s\n", target.Behavior())

	for {
		conn, err := target.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintf(os.Stderr, "accepted %s\n", conn.RemoteAddr())
		go func() {
			defer conn.Close()
			_, _ = io.Copy(os.Stdout, conn)
		}()
	}
}

// pipe 把标准输入写入连接，把连接数据写到标准输出，对端关闭或 ctx 结束时返回
func pipe(ctx context.Context, conn net.Conn) error {
	go func() {
		_, _ = io.Copy(conn, os.Stdin)
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_, err := io.Copy(os.Stdout, conn)
	if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
