package models

import "strings"

// 产物状态（图片 / 音频 / 视频共用）
const (
	ArtifactGenerating = "generating"
	ArtifactCompleted  = "completed"
	ArtifactError      = "error"
)

// IsTerminalArtifact 不重新生成就不会再变化的产物状态
func IsTerminalArtifact(status string) bool {
	return status == ArtifactCompleted || status == ArtifactError
}

type GeneratedImage struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Prompt    string `json:"prompt"`
	Timestamp int64  `json:"timestamp"`
	Order     int    `json:"order"`
	Status    string `json:"status"`
	Validated bool   `json:"validated"`
}

type GeneratedAudio struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Text      string  `json:"text"`
	Duration  float64 `json:"duration"`
	Timestamp int64   `json:"timestamp"`
	Status    string  `json:"status"`
	Validated bool    `json:"validated"`
}

// GeneratedVideo 最终视频；SourceImageIDs / SourceAudioIDs 记录生成时消费的产物
type GeneratedVideo struct {
	ID             string   `json:"id"`
	URL            string   `json:"url"`
	Duration       float64  `json:"duration"`
	CreatedAt      string   `json:"createdAt,omitempty"`
	Status         string   `json:"status"`
	SourceImageIDs []string `json:"sourceImageIds,omitempty"`
	SourceAudioIDs []string `json:"sourceAudioIds,omitempty"`
}

func (v GeneratedVideo) clone() GeneratedVideo {
	next := v
	next.SourceImageIDs = cloneSlice(v.SourceImageIDs)
	next.SourceAudioIDs = cloneSlice(v.SourceAudioIDs)
	return next
}

// ValidationResult 远端对生成结果的校验
type ValidationResult struct {
	IsValid     bool     `json:"isValid"`
	Confidence  float64  `json:"confidence"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// NormalizeArtifactStatus 兼容远端返回的多种状态写法
func NormalizeArtifactStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case ArtifactCompleted, "finished", "success", "succeeded", "done":
		return ArtifactCompleted
	case ArtifactError, "failed", "failure":
		return ArtifactError
	default:
		return ArtifactGenerating
	}
}
