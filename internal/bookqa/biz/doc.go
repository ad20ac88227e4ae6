// Package biz 提供 BookQA 服务的业务逻辑层。
//
// 该包采用分层架构，将业务逻辑拆分为以下组件：
//   - Chunker: 按句子边界确定性切分文档为文本单元
//   - Embedder: 批量嵌入适配器（分批、退避重试、逐单元记账）
//   - Controller: 模式感知的检索控制器（全库检索 / 选中文本）
//   - Validator: 接地校验器（生成前预检、生成后接地检查、拒答替换）
//   - Generator: 生成适配器（定界提示词装配、LLM 调用）
//   - Ingestor: 摄入编排（有界并发、逐单元状态持久化、可恢复）
//   - SessionManager: 会话管理（单写者追加、不活跃过期）
//   - Service: 组合以上组件，提供统一的服务接口
//
// 全库检索与选中文本两种模式互斥：选中文本路径在构造上不持有
// 向量存储引用，不可能发起检索调用。
package biz
