package rag

import "time"

// PipelineMetrics 管线各阶段的观测回调。
// 具体实现在 internal/metrics，rag 只依赖这个窄接口。
type PipelineMetrics interface {
	// ObserveStage 记录某阶段（rewrite、difficulty、retrieve、rank、generate）耗时。
	ObserveStage(stage string, d time.Duration)
	// IncQueries 记录一次查询处理，outcome 为 ok、empty、error、cancelled。
	IncQueries(outcome string)
	// ObserveDifficulty 记录难度估计值分布。
	ObserveDifficulty(score int)
	// IncFallback 记录检索降级分支命中，branch 为 filtered、client_side、unfiltered。
	IncFallback(branch string)
	// ObserveCandidates 记录本次检索送入重排的候选数。
	ObserveCandidates(count int)
}

// NopMetrics 空实现，测试与未接监控的部署使用。
type NopMetrics struct{}

func (NopMetrics) ObserveStage(string, time.Duration) {}
func (NopMetrics) IncQueries(string)                  {}
func (NopMetrics) ObserveDifficulty(int)              {}
func (NopMetrics) IncFallback(string)                 {}
func (NopMetrics) ObserveCandidates(int)              {}
