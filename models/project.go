package models

import (
	"time"

	"github.com/google/uuid"
)

// 项目状态常量（对外展示的整体状态）
const (
	ProjectStatusDraft      = "draft"      // 已创建，尚未发起任何阶段请求
	ProjectStatusProcessing = "processing" // 至少发起过一次阶段请求
	ProjectStatusCompleted  = "completed"  // 最终视频已完成
	ProjectStatusError      = "error"      // 有阶段失败且没有阶段在执行
)

// ProcessingStep 当前阶段内的进度描述
type ProcessingStep struct {
	Current          string `json:"current"`
	Total            int    `json:"total"`
	Completed        int    `json:"completed"`
	CurrentOperation string `json:"currentOperation"`
}

// Project 根聚合。快照一经发布即视为不可变，所有写入都产生新快照。
type Project struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Status          string           `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	TextContent     string           `json:"textContent"`
	Scenes          []Scene          `json:"scenes"`
	GeneratedImages []GeneratedImage `json:"generatedImages"`
	GeneratedAudio  []GeneratedAudio `json:"generatedAudio"`
	FinalVideo      *GeneratedVideo  `json:"finalVideo,omitempty"`
	ProcessingStep  *ProcessingStep  `json:"processingStep,omitempty"`
	Progress        int              `json:"progress"`
	Stages          StageStates      `json:"stages,omitempty"`
	Epoch           int              `json:"epoch"`
}

// NewProject 创建草稿项目：空集合，进度 0
func NewProject(seedText string) Project {
	now := time.Now()
	return Project{
		ID:              uuid.NewString(),
		Status:          ProjectStatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
		TextContent:     seedText,
		Scenes:          []Scene{},
		GeneratedImages: []GeneratedImage{},
		GeneratedAudio:  []GeneratedAudio{},
		Stages:          NewStageStates(),
	}
}

// ReplaceText 外部编辑源文本：清空所有派生产物并开始新的 epoch
func (p Project) ReplaceText(newText string) Project {
	next := p.Clone()
	next.TextContent = newText
	next.Scenes = []Scene{}
	next.GeneratedImages = []GeneratedImage{}
	next.GeneratedAudio = []GeneratedAudio{}
	next.FinalVideo = nil
	next.ProcessingStep = nil
	next.Progress = 0
	next.Status = ProjectStatusDraft
	next.Stages = NewStageStates()
	next.Epoch++
	next.UpdatedAt = time.Now()
	return next
}

// Clone 深拷贝，不与 p 共享任何切片或指针
func (p Project) Clone() Project {
	next := p
	if p.Scenes != nil {
		next.Scenes = make([]Scene, len(p.Scenes))
		for i, s := range p.Scenes {
			next.Scenes[i] = s.clone()
		}
	}
	next.GeneratedImages = cloneSlice(p.GeneratedImages)
	next.GeneratedAudio = cloneSlice(p.GeneratedAudio)
	if p.FinalVideo != nil {
		v := p.FinalVideo.clone()
		next.FinalVideo = &v
	}
	if p.ProcessingStep != nil {
		step := *p.ProcessingStep
		next.ProcessingStep = &step
	}
	next.Stages = p.Stages.Clone()
	return next
}

// cloneSlice 复制切片；nil 保持 nil，空切片保持为空切片（JSON 中为 []）
func cloneSlice[T any](src []T) []T {
	if src == nil {
		return nil
	}
	out := make([]T, len(src))
	copy(out, src)
	return out
}

// ImageByID 返回同 id 图片的下标，没有时返回 -1
func (p Project) ImageByID(id string) int {
	for i, img := range p.GeneratedImages {
		if img.ID == id {
			return i
		}
	}
	return -1
}

func (p Project) AudioByID(id string) int {
	for i, a := range p.GeneratedAudio {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (p Project) SceneByID(id string) int {
	for i, s := range p.Scenes {
		if s.ID == id {
			return i
		}
	}
	return -1
}
