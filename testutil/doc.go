// Copyright 2026 AgentMesh Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 AgentMesh 测试的共享工具和辅助函数。

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext
  - 可控时钟: FakeClock，配合各组件的 WithClock 选项驱动心跳扫描
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual

# 子包

  - testutil/fixtures: 预定义的 Agent 注册记录与能力描述
*/
package testutil
