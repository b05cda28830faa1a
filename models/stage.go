package models

import "strings"

// Stage 流水线阶段，按固定顺序推进
type Stage string

const (
	StageAnalysis Stage = "analysis"
	StageImages   Stage = "images"
	StageAudio    Stage = "audio"
	StageVideo    Stage = "video"
)

// StageStatus 单个阶段的状态机
type StageStatus string

const (
	StageNotStarted StageStatus = "not_started"
	StageInFlight   StageStatus = "in_flight"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

var orderedStages = []Stage{StageAnalysis, StageImages, StageAudio, StageVideo}

// Stages 按执行顺序返回所有阶段
func Stages() []Stage {
	cp := make([]Stage, len(orderedStages))
	copy(cp, orderedStages)
	return cp
}

// ParseStage 把用户输入转为已知阶段
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range orderedStages {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// IsTerminal 没有显式请求就不会再变化的状态
func (s StageStatus) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// StageStates 每个阶段存储的状态（分析阶段与视频阶段没有可推导状态的产物集合）
type StageStates map[Stage]StageStatus

// NewStageStates 所有阶段均为 not_started
func NewStageStates() StageStates {
	states := make(StageStates, len(orderedStages))
	for _, s := range orderedStages {
		states[s] = StageNotStarted
	}
	return states
}

// Get 缺失的阶段按 not_started 处理
func (s StageStates) Get(stage Stage) StageStatus {
	if st, ok := s[stage]; ok && st != "" {
		return st
	}
	return StageNotStarted
}

// Clone 复制 map；nil 时返回全新的 not_started 集合
func (s StageStates) Clone() StageStates {
	if s == nil {
		return NewStageStates()
	}
	cp := make(StageStates, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}
