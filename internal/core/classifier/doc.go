// Package classifier 通过主动探测参考服务器分类本地 NAT 行为
//
// 协议为 TCP 上的 STUN（RFC 5389/5780）。所有探测套接字都绑定到调用方
// 给定的源端口并开启地址/端口复用，每个阶段结束即关闭。
//
// # 过滤测试
//
//  1. Binding 请求主地址；响应无 OTHER-ADDRESS ⇒ DontCare
//  2. 指示服务器换 IP 和端口回连，等待 T；收到 ⇒ EndpointIndependent
//  3. 指示服务器只换端口回连；收到 ⇒ AddressDependent
//  4. 指示服务器不换地址回连；收到 ⇒ AddressAndPortDependent
//  5. 全部超时 ⇒ ConnectionDependent
//
// # 映射测试
//
// TestI..TestIV 比较映射地址：与本地地址相同 ⇒ NotRealized；
// 换 IP 后不变 ⇒ EndpointIndependent；再换端口不变 ⇒ AddressDependent；
// 回到主地址变化 ⇒ ConnectionDependent，否则 AddressAndPortDependent。
//
// 任何探测错误都降级为 DontCare，不向调用方返回错误。
//
// ProbeServer 是配套的参考服务器，在最多四个 IP/端口组合上应答并执行回连。
package classifier
