/*
# 概述

Package rag 实现带自适应扇出与会话记忆的检索增强问答管线。

管线阶段：会话历史读取 → 查询重写（QueryRewriter）与难度估计
（DifficultyEstimator，并发执行）→ 候选检索（CandidateRetriever，
带过滤降级链）→ 多因子重排序（DocumentRanker）→ 答案生成
（AnswerGenerator，阻塞或流式）→ 记忆提交（仅在完整生成后）。

# 核心接口/类型

  - VectorStore — 向量索引统一接口（AddDocuments / SearchWithScore / Search / Delete / List / Count）
  - ConversationMemory — 有界 FIFO 会话记忆（WindowMemory / RedisMemory）
  - FileRegistry — 上传文件登记（active 标志持久化）
  - EmbeddingProvider / CompletionClient — 外部模型的窄接口
  - Orchestrator — 对外的 ProcessQuery / GetRetrievedDocuments /
    GetCitationsForQuery / ClearMemory

# 关键不变式

  - 记忆只在完整生成（流被全部排空）之后写入；中途取消不产生半轮记忆
  - 过滤降级链的各分支满足同一后置条件（仅活跃文档、≤ poolK），
    但不保证逐位一致的排序
  - 重写后的查询只用于检索；生成始终使用用户原始提问
  - 文件停用/启用通过删除+重插实现，块 ID 始终保持稳定
*/
package rag
