// Package core 汇总了规划中的高阶决策组件说明。
//
// 当前版本的执行面由 internal/agent 提供：在预算约束下顺序调度原子任务。
// 在此之上还规划了三个尚未落地的组件：StrategicEngine 负责把高层目标拆解为
// 任务序列；ForecastEngine 基于历史用量预测一批任务的 token 与成本消耗，
// 用于在提交前预判预算是否足够；DecisionAgent 则在预算紧张时决定裁剪哪些
// 低优先级任务。它们落地后会复用 internal/usage 的记账数据作为输入。
package core
