// Copyright (c) AgentMesh Authors.
// Licensed under the MIT License.

/*
包 cache 管理 AgentMesh 与 Redis 的共享连接。

# 概述

Manager 持有唯一的 go-redis 客户端，供 Redis 广播通道与注册表镜像复用。
它负责连接初始化、后台健康检查与优雅关闭，并提供 JSON 读写辅助方法。

# 核心类型

  - Manager：连接管理器，提供 Client/Ping/Healthy/Close，
    以及 GetJSON/SetJSON/Delete/Keys。
  - Config：地址、密码、连接池大小与健康检查间隔等参数。
  - RegistryMirror：订阅本地注册表事件，把成员记录写入
    agentmesh:agent:<id> 键，供其他进程查看网格成员。

# 错误语义

ErrCacheMiss 表示键不存在，可用 IsCacheMiss 判断；
ErrClosed 表示管理器已关闭。
*/
package cache
