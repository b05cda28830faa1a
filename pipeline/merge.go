package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"StoryToVideo-client/models"
)

// MessageProjectUpdate 唯一会被合并的推送消息类型
const MessageProjectUpdate = "project_update"

// PushMessage 推送通道上的一条消息
type PushMessage struct {
	Type    string          `json:"type"`
	Project json.RawMessage `json:"project"`
}

// Fragment 按顶层 JSON 字段名索引的部分项目
type Fragment map[string]json.RawMessage

func ParseFragment(data []byte) (Fragment, error) {
	var f Fragment
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fragment: %w", err)
	}
	return f, nil
}

// MergeFragment 浅合并：片段中出现的顶层字段覆盖当前值，未出现的保持不变；
// 数组与 finalVideo 整体替换。后应用的片段胜出，乱序到达时旧值会覆盖新值。
//
// id 不可变，直接忽略。textContent 与当前文本不同时先按外部编辑处理
// （清空派生集合），其余字段再覆盖到重置后的快照上。
func MergeFragment(current models.Project, fragment Fragment) (models.Project, error) {
	next := current.Clone()

	if raw, ok := fragment["textContent"]; ok {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return current, fmt.Errorf("merge textContent: %w", err)
		}
		if text != next.TextContent {
			next = next.ReplaceText(text)
		}
	}

	for key, raw := range fragment {
		var err error
		switch key {
		case "id", "textContent":
			continue
		case "userId":
			err = json.Unmarshal(raw, &next.UserID)
		case "title":
			err = json.Unmarshal(raw, &next.Title)
		case "description":
			err = json.Unmarshal(raw, &next.Description)
		case "status":
			err = json.Unmarshal(raw, &next.Status)
		case "createdAt":
			err = json.Unmarshal(raw, &next.CreatedAt)
		case "updatedAt":
			err = json.Unmarshal(raw, &next.UpdatedAt)
		case "progress":
			err = json.Unmarshal(raw, &next.Progress)
		case "scenes":
			var scenes []models.Scene
			if err = json.Unmarshal(raw, &scenes); err == nil {
				next.Scenes = nonNil(scenes)
			}
		case "generatedImages":
			var images []models.GeneratedImage
			if err = json.Unmarshal(raw, &images); err == nil {
				for i := range images {
					images[i].Status = models.NormalizeArtifactStatus(images[i].Status)
				}
				next.GeneratedImages = nonNil(images)
			}
		case "generatedAudio":
			var audio []models.GeneratedAudio
			if err = json.Unmarshal(raw, &audio); err == nil {
				for i := range audio {
					audio[i].Status = models.NormalizeArtifactStatus(audio[i].Status)
				}
				next.GeneratedAudio = nonNil(audio)
			}
		case "finalVideo":
			var video *models.GeneratedVideo
			if err = json.Unmarshal(raw, &video); err == nil {
				if video != nil {
					video.Status = models.NormalizeArtifactStatus(video.Status)
				}
				next.FinalVideo = video
			}
		case "processingStep":
			var step *models.ProcessingStep
			if err = json.Unmarshal(raw, &step); err == nil {
				next.ProcessingStep = step
			}
		case "stages":
			var stages models.StageStates
			if err = json.Unmarshal(raw, &stages); err == nil {
				next.Stages = stages.Clone()
			}
		}
		if err != nil {
			return current, fmt.Errorf("merge %s: %w", key, err)
		}
	}
	if _, ok := fragment["updatedAt"]; !ok {
		next.UpdatedAt = time.Now()
	}
	return next, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
