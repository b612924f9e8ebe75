// 版权所有 2026 UniLLM Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 streaming 实现统一事件流水线：把 Provider 的 SSE / JSONL 字节流
解码为统一流事件，并提供可取消的消费句柄。

# 状态机

一条流依次经过 Connecting → Decoding → (Draining | Cancelled |
Disconnected) → Closed。Draining 由终止哨兵（如 [DONE]）触发；
Cancelled 由消费者协作取消触发；Disconnected 表示连接异常断开。
任何终态之后事件通道关闭，不再产出任何事件。

# 核心构建块

  - Decoder — SSE 帧解码（event:/data: 行、空行分帧、多行 data 连接）
    与 JSONL 行解码。
  - ItemBuffer — 带高/低水位线的有界缓冲，消费者阻塞时向解码器施加反压，
    支持 Block、DropOldest、DropNewest、Error 四种策略。
  - Pipeline — 组合解码器、Provider 转换器与取消适配器，产出
    llm.StreamHandle。

# 关键语义

  - 格式错误的帧产生带内错误项，解码继续；致命传输错误终止流。
  - 取消在帧边界检查：Cancel 之后通道立即关闭，缓冲中未消费的事件被丢弃，
    连接被丢弃而非读尽。
  - 一旦开始消费响应体，不再有任何重试。
  - 连接异常断开时是否合成终止事件由转换器的 FinalizeOnDisconnect 决定。
*/
package streaming
