// Package store 提供 BookQA 服务的数据存储层。
//
// 该包包含两类存储：
//   - 向量存储（Milvus）：文本单元的嵌入向量写入、相似度检索与按来源清除；
//   - 关系存储（GORM）：会话及其轮次、可恢复摄入的分阶段单元状态。
package store
