//go:build !unix

package reuseport

import "syscall"

// Available 当前平台是否支持端口复用
const Available = false

// Control 非 unix 平台不设置复用选项，同端口的第二个套接字会绑定失败
func Control(_, _ string, _ syscall.RawConn) error {
	return nil
}
