// Copyright 2026 SuperAgent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config 提供 SuperAgent 的配置管理功能。

# 概述

config 包负责应用配置的完整生命周期管理，包括多源加载与
运行时热重载。配置按 "默认值 -> YAML 文件 -> 环境变量"
的优先级合并。

# 核心结构

  - Config: 顶层配置聚合，涵盖 LLM、Memory、Executor、
    Security、UX、Redis、Database、Log、Telemetry
  - Loader: 配置加载器，支持 Builder 模式链式设置
    文件路径、环境变量前缀与自定义验证器
  - HotReloadManager: 热重载管理器，支持文件监听、
    局部字段更新、变更回调与变更历史
  - FileWatcher: 文件变更监听器，基于 fsnotify + 去抖机制
    触发配置重载，无法初始化时降级为轮询

# 主要能力

  - 多源加载: YAML 文件、环境变量（SUPERAGENT_ 前缀）、默认值
  - 热重载: 文件监听自动重载，支持白名单字段级更新
  - 安全治理: 敏感字段脱敏（SanitizedConfig）
  - 变更审计: 变更历史记录与逐字段回调
  - 配置验证: 内置基础校验 + 自定义验证器钩子

# 使用示例

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("SUPERAGENT").
		Load()
*/
package config
