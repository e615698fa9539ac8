// Package mediator 实现与中介服务器之间的控制通道
//
// 控制消息复用 STUN 帧格式：方法 0x0A1..0x0A6 对应注册、注销、保活、
// 行为查询、技术查询和连接请求；自定义属性位于 0xC001 起的
// comprehension-optional 区间，端点以 XOR 地址编码，失败码使用 ERROR-CODE。
//
// Channel 可包装任意流连接（TCP 或 net.Pipe）。Request 与 Receive 可并发
// 调用：响应按事务 ID 交给对应请求，其余消息按到达顺序交给 Receive。
package mediator
