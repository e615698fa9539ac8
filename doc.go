// Package natt 提供基于中介协调的 NAT 穿透连接建立
//
// 节点先对本地 NAT 的映射与过滤行为分类，再按双方行为组成的情形从决策表中
// 选出可用的穿透技术，按预计建立耗时依次尝试，直到拿到一条直连 TCP 连接。
//
// # 核心概念
//
//   - Node: 用户入口，持有技术注册表与两端编排器
//   - 控制通道: 到中介的双向消息通道（mediator.Channel 或自定义实现）
//   - 技术: 直连、反向连接、打洞，均实现 interfaces.Technique
//
// # 快速开始
//
//	cfg := config.NewConfig()
//	cfg.Classifier.Server = "203.0.113.10:3478"
//	cfg.Orchestrator.PeerID = "peer-a"
//
//	node, err := natt.Start(ctx, natt.WithConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	// 源端：经中介连接目标
//	ch, _ := mediator.Dial(ctx, "mediator.example.com:7000")
//	conn, err := node.Connect(ctx, "peer-b", ch)
//
//	// 目标端：注册并等待连接
//	target, err := node.Listen(ctx, ch)
//	conn, err := target.Accept(ctx)
//
// # 日志
//
// 日志按子系统输出（natt.classifier、natt.orchestrator 等），
// 级别由 NATT_LOG_LEVEL 控制，例如 "natt.holepunch=debug,info"。
package natt
