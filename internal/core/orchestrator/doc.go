// Package orchestrator 编排连接建立
//
// 源端（Source）：分类本地 NAT 行为，经中介查询目标的行为与支持的技术，
// 按决策表排名逐个尝试技术。每次只有一个技术在运行，超时即取消并转到
// 下一个技术，全部失败时返回 NotEstablishedError。
//
// 目标端（Target）：向中介注册并定时保活；读循环把连接请求交给工作
// goroutine，分发器用 select 等待工作结果与入站消息，读循环从不等待工作者。
//
// 状态机：
//
//	Unregistered ──Register──▶ WaitingForRequest ──请求──▶ Establishing
//	                                  ▲                        │
//	                                  └──────────失败──────────┤
//	                                                           ▼ 成功
//	                                     Accept 取走 ◀──── Connected
//
// Deregister 可从任何状态回到 Unregistered。
package orchestrator
