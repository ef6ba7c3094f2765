// Copyright (c) AgentMesh Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与优雅关闭。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start、Shutdown、
    Wait 等生命周期方法。AgentMesh 为 API 与 metrics 各创建一个实例。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中提供服务，Addr 返回实际
    监听地址（支持 ":0" 随机端口）。
  - 优雅关闭：Shutdown 在配置的超时内排空请求，可重复调用。
  - 生命周期等待：Wait 在 ctx 结束或服务异常退出时触发关闭，
    配合 signal.NotifyContext 使用。
*/
package server
