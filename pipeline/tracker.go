package pipeline

import (
	"fmt"
	"strings"

	"StoryToVideo-client/models"
)

// ReadinessPolicy 视频阶段开始前需要完成多少图片/音频产物
type ReadinessPolicy string

const (
	ReadinessAll ReadinessPolicy = "all"
	ReadinessAny ReadinessPolicy = "any"
)

// ParseReadinessPolicy 接受 all 或 any，空值按 all 处理
func ParseReadinessPolicy(value string) (ReadinessPolicy, error) {
	switch ReadinessPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", ReadinessAll:
		return ReadinessAll, nil
	case ReadinessAny:
		return ReadinessAny, nil
	default:
		return "", fmt.Errorf("unknown video readiness policy %q", value)
	}
}

// Capability UI 据此启用阶段操作（只读）
type Capability struct {
	Status        models.StageStatus `json:"status"`
	CanRun        bool               `json:"canRun"`
	CanRegenerate bool               `json:"canRegenerate"`
}

// Tracker 阶段前置条件表的唯一持有者，其他地方不再重复推导
type Tracker struct {
	Policy ReadinessPolicy
}

func NewTracker(policy ReadinessPolicy) Tracker {
	if policy == "" {
		policy = ReadinessAll
	}
	return Tracker{Policy: policy}
}

// Status 返回阶段的实际状态。images / audio 由产物集合推导；
// analysis 与 video 无可推导数据时使用存储的状态
func (t Tracker) Status(p models.Project, stage models.Stage) models.StageStatus {
	stored := p.Stages.Get(stage)
	switch stage {
	case models.StageAnalysis:
		if stored == models.StageInFlight || stored == models.StageFailed {
			return stored
		}
		if len(p.Scenes) > 0 {
			return models.StageCompleted
		}
		return models.StageNotStarted
	case models.StageImages:
		statuses := make([]string, len(p.GeneratedImages))
		for i, img := range p.GeneratedImages {
			statuses[i] = img.Status
		}
		return collectionStatus(statuses, stored)
	case models.StageAudio:
		statuses := make([]string, len(p.GeneratedAudio))
		for i, a := range p.GeneratedAudio {
			statuses[i] = a.Status
		}
		return collectionStatus(statuses, stored)
	case models.StageVideo:
		if p.FinalVideo != nil {
			return artifactStageStatus(p.FinalVideo.Status)
		}
		if stored == models.StageCompleted {
			return models.StageNotStarted
		}
		return stored
	default:
		return models.StageNotStarted
	}
}

func collectionStatus(statuses []string, stored models.StageStatus) models.StageStatus {
	if len(statuses) == 0 {
		if stored == models.StageInFlight || stored == models.StageFailed {
			return stored
		}
		return models.StageNotStarted
	}
	var pending, completed int
	for _, s := range statuses {
		switch s {
		case models.ArtifactCompleted:
			completed++
		case models.ArtifactError:
		default:
			pending++
		}
	}
	switch {
	case pending > 0:
		return models.StageInFlight
	case completed > 0:
		return models.StageCompleted
	default:
		return models.StageFailed
	}
}

func artifactStageStatus(status string) models.StageStatus {
	switch status {
	case models.ArtifactCompleted:
		return models.StageCompleted
	case models.ArtifactError:
		return models.StageFailed
	default:
		return models.StageInFlight
	}
}

// Statuses 所有阶段的实际状态
func (t Tracker) Statuses(p models.Project) models.StageStates {
	out := make(models.StageStates, 4)
	for _, s := range models.Stages() {
		out[s] = t.Status(p, s)
	}
	return out
}

// InputsReady 阶段所需输入是否齐备
func (t Tracker) InputsReady(p models.Project, stage models.Stage) bool {
	switch stage {
	case models.StageAnalysis:
		return strings.TrimSpace(p.TextContent) != ""
	case models.StageImages, models.StageAudio:
		return len(p.Scenes) > 0
	case models.StageVideo:
		return t.VideoReady(p)
	default:
		return false
	}
}

// VideoReady 按就绪策略检查图片与音频集合
func (t Tracker) VideoReady(p models.Project) bool {
	imgTotal, imgDone := len(p.GeneratedImages), 0
	for _, img := range p.GeneratedImages {
		if img.Status == models.ArtifactCompleted {
			imgDone++
		}
	}
	audTotal, audDone := len(p.GeneratedAudio), 0
	for _, a := range p.GeneratedAudio {
		if a.Status == models.ArtifactCompleted {
			audDone++
		}
	}
	if imgDone == 0 || audDone == 0 {
		return false
	}
	if t.Policy == ReadinessAny {
		return true
	}
	return imgDone == imgTotal && audDone == audTotal
}

// CheckRun 校验推进阶段的请求。failed 与 completed 的阶段只能通过重新生成再次执行，
// 否则会在同一 epoch 内回退进度
func (t Tracker) CheckRun(p models.Project, stage models.Stage) error {
	st := t.Status(p, stage)
	switch st {
	case models.StageFailed:
		return Wrap(ErrValidation, string(stage), "run", "stage failed; regenerate it instead", nil)
	case models.StageCompleted:
		return Wrap(ErrValidation, string(stage), "run", "stage already completed; regenerate it instead", nil)
	}
	return t.checkStart(p, stage, st, "run")
}

// CheckRegenerate 校验重新生成请求
func (t Tracker) CheckRegenerate(p models.Project, stage models.Stage) error {
	return t.checkStart(p, stage, t.Status(p, stage), "regenerate")
}

func (t Tracker) checkStart(p models.Project, stage models.Stage, st models.StageStatus, op string) error {
	if st == models.StageInFlight {
		return Wrap(ErrConflict, string(stage), op, "stage already in flight", nil)
	}
	if !t.InputsReady(p, stage) {
		return Wrap(ErrValidation, string(stage), op, "required inputs missing", nil)
	}
	return nil
}

// CanRun 供 UI 使用的能力查询
func (t Tracker) CanRun(p models.Project, stage models.Stage) bool {
	return t.CheckRun(p, stage) == nil
}

func (t Tracker) CanRegenerate(p models.Project, stage models.Stage) bool {
	return t.CheckRegenerate(p, stage) == nil
}

// Capabilities 每个阶段的状态与可执行操作
func (t Tracker) Capabilities(p models.Project) map[models.Stage]Capability {
	out := make(map[models.Stage]Capability, 4)
	for _, s := range models.Stages() {
		out[s] = Capability{
			Status:        t.Status(p, s),
			CanRun:        t.CanRun(p, s),
			CanRegenerate: t.CanRegenerate(p, s),
		}
	}
	return out
}

// DeriveStatus 由各阶段状态推导项目整体状态
func (t Tracker) DeriveStatus(p models.Project) string {
	statuses := t.Statuses(p)
	failed := false
	for _, st := range statuses {
		if st == models.StageInFlight {
			return models.ProjectStatusProcessing
		}
		if st == models.StageFailed {
			failed = true
		}
	}
	if statuses[models.StageVideo] == models.StageCompleted {
		return models.ProjectStatusCompleted
	}
	if failed {
		return models.ProjectStatusError
	}
	if p.Status == models.ProjectStatusDraft || p.Status == "" {
		return models.ProjectStatusDraft
	}
	return models.ProjectStatusProcessing
}

// Refresh 发布前规整快照：未完成的 finalVideo 转为存储的视频阶段状态，
// 存储状态与推导状态对齐，并重新计算进度与整体状态
func (t Tracker) Refresh(p models.Project) models.Project {
	p.Stages = p.Stages.Clone()
	if p.FinalVideo != nil && p.FinalVideo.Status != models.ArtifactCompleted {
		p.Stages[models.StageVideo] = artifactStageStatus(p.FinalVideo.Status)
		p.FinalVideo = nil
	}
	for _, s := range models.Stages() {
		p.Stages[s] = t.Status(p, s)
	}
	p.Progress = ComputeProgress(p)
	p.Status = t.DeriveStatus(p)
	return p
}
