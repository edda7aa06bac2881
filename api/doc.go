// Package api 定义 HTTP API 的请求/响应数据结构。
//
// 具体的 HTTP 处理逻辑位于 api/handlers 子包，本包只承载
// 对外暴露的 DTO，保持传输层类型与内部领域类型解耦。
package api
