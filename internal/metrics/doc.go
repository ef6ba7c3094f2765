// Copyright (c) AgentMesh Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
注册表、发现与心跳、协作会话以及 Agent 间消息。

Collector 使用 promauto 注册到默认 Registry，所有指标按 namespace
隔离。Collector 同时满足 discovery.Observer，可直接挂到发现服务上。
所有 Record 方法对 nil 接收者安全，未启用指标时无需判空。
*/
package metrics
