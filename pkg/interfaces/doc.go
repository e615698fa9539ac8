// Package interfaces 定义 go-natt 公共接口
//
// 只依赖 pkg/types。实现位于 internal/ 下，通过 fx 模块注入。
//
//   - technique.go - Technique, ControlChannel, BehaviorClassifier, EndpointDiscoverer
package interfaces
