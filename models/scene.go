package models

import (
	"strings"

	"github.com/google/uuid"
)

const (
	SceneImagePending    = "pending"
	SceneImageProcessing = "processing"
	SceneImageCompleted  = "completed"
	SceneImageFailed     = "failed"
)

// Scene 分析阶段从源文本中提取出的叙事单元
type Scene struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	Content               string   `json:"content"`
	Summary               string   `json:"summary"`
	ChapterNumber         int      `json:"chapter_number,omitempty"`
	SceneNumber           int      `json:"scene_number,omitempty"`
	Characters            []string `json:"characters"`
	Setting               string   `json:"setting,omitempty"`
	Mood                  string   `json:"mood,omitempty"`
	Themes                []string `json:"themes"`
	ImagePrompt           string   `json:"image_prompt,omitempty"`
	ImageGenerationStatus string   `json:"image_generation_status"`
	ImageURL              string   `json:"image_url,omitempty"`
	ImageError            string   `json:"image_error,omitempty"`
}

func (s Scene) clone() Scene {
	next := s
	next.Characters = cloneSlice(s.Characters)
	next.Themes = cloneSlice(s.Themes)
	return next
}

// TextChunk 图片/音频扇出请求的单个输入，ID 即对应产物的 ID
type TextChunk struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Order       int    `json:"order"`
	ImagePrompt string `json:"imagePrompt"`
	AudioText   string `json:"audioText"`
}

// NormalizeScenes 为分析结果补齐缺失的 ID 与图片状态
func NormalizeScenes(scenes []Scene) []Scene {
	out := make([]Scene, 0, len(scenes))
	for _, s := range scenes {
		s = s.clone()
		if strings.TrimSpace(s.ID) == "" {
			s.ID = uuid.NewString()
		}
		if s.ImageGenerationStatus == "" {
			s.ImageGenerationStatus = SceneImagePending
		}
		if s.Characters == nil {
			s.Characters = []string{}
		}
		if s.Themes == nil {
			s.Themes = []string{}
		}
		out = append(out, s)
	}
	return out
}

// ChunksFromScenes 按场景顺序生成扇出输入
func ChunksFromScenes(scenes []Scene) []TextChunk {
	chunks := make([]TextChunk, 0, len(scenes))
	for i, s := range scenes {
		prompt := s.ImagePrompt
		if prompt == "" {
			prompt = s.Summary
		}
		if prompt == "" {
			prompt = s.Content
		}
		chunks = append(chunks, TextChunk{
			ID:          s.ID,
			Content:     s.Content,
			Order:       i + 1,
			ImagePrompt: prompt,
			AudioText:   s.Content,
		})
	}
	return chunks
}
