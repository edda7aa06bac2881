// =============================================================================
// ragserve 命令行入口
// =============================================================================
//
// ragserve 是检索增强问答服务的可执行程序，提供：
//
//   - serve    启动 HTTP / WebSocket 服务与指标端口
//   - version  显示版本信息
//   - health   对运行中的服务做健康探测
//
// 服务端行为由 YAML 配置 + RAGSERVE_ 前缀环境变量控制，
// 详见 config 包。
package main
