// Package holepunch 实现 TCP 打洞竞速引擎与打洞技术
//
// 双方通过中介交换两个候选端点（公网观测端点与本地端点）以及发起方生成的
// 竞速令牌，然后各自在同一个复用端口上并发运行三条路径：
//
//	拨号 A ──▶ 候选端点 1（失败后按速率重试）
//	拨号 B ──▶ 候选端点 2
//	监听   ◀── 同一本地端口的入站连接
//
// 任一路径得到连接后执行三消息认证。会话发起方总是发送 AUTH，
// 接收方同一时刻只为一个套接字回复 ACK，因此双方提交的必然是同一个套接字。
// 第一个认证通过的套接字在会话锁内提交，随后取消其余路径、关闭它们的
// 套接字和监听器；锁外晚到的认证结果一律关闭。
//
// 竞速本身不会因单次拨号或认证失败而失败，只受调用方上下文约束。
package holepunch
