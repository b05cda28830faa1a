package pipeline

import (
	"time"

	"StoryToVideo-client/models"
)

// RegenerationPlan 重新生成某阶段前要清空的内容，以及随之失效的下游阶段
type RegenerationPlan struct {
	Stage models.Stage
	// IDs 限定图片/音频只清空对应产物，为空表示全部
	IDs         []string
	ClearScenes bool
	ClearImages bool
	ClearAudio  bool
	ClearVideo  bool
	Invalidated []models.Stage
}

// PlanRegeneration 按重新生成策略表为快照生成计划
func PlanRegeneration(p models.Project, stage models.Stage, ids []string) RegenerationPlan {
	plan := RegenerationPlan{Stage: stage, IDs: append([]string(nil), ids...)}
	switch stage {
	case models.StageAnalysis:
		plan.IDs = nil
		plan.ClearScenes = true
		plan.ClearImages = true
		plan.ClearAudio = true
		plan.ClearVideo = true
		plan.Invalidated = []models.Stage{models.StageImages, models.StageAudio, models.StageVideo}
	case models.StageImages:
		plan.ClearImages = true
		if videoConsumed(p.FinalVideo, func(v *models.GeneratedVideo) []string { return v.SourceImageIDs }, plan.targets(imageIDs(p))) {
			plan.ClearVideo = true
			plan.Invalidated = []models.Stage{models.StageVideo}
		}
	case models.StageAudio:
		plan.ClearAudio = true
		if videoConsumed(p.FinalVideo, func(v *models.GeneratedVideo) []string { return v.SourceAudioIDs }, plan.targets(audioIDs(p))) {
			plan.ClearVideo = true
			plan.Invalidated = []models.Stage{models.StageVideo}
		}
	case models.StageVideo:
		plan.IDs = nil
		plan.ClearVideo = true
	}
	return plan
}

// targets 返回 all 中计划要清空的产物 id
func (pl RegenerationPlan) targets(all []string) []string {
	if len(pl.IDs) == 0 {
		return all
	}
	return pl.IDs
}

// videoConsumed 最终视频是否用到了目标产物；未记录来源的视频视为用到了全部
func videoConsumed(v *models.GeneratedVideo, sources func(*models.GeneratedVideo) []string, targets []string) bool {
	if v == nil {
		return false
	}
	used := sources(v)
	if len(used) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(used))
	for _, id := range used {
		set[id] = struct{}{}
	}
	for _, id := range targets {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// Apply 清空计划列出的内容并开始新的 epoch。项目置为 processing，
// 进度由 arena 在替换时重新计算，可能下降
func (pl RegenerationPlan) Apply(p models.Project) models.Project {
	next := p.Clone()
	if pl.ClearScenes {
		next.Scenes = []models.Scene{}
		next.Stages[models.StageAnalysis] = models.StageNotStarted
	}
	if pl.ClearImages {
		next.GeneratedImages = removeImages(next.GeneratedImages, pl.IDs)
		next.Stages[models.StageImages] = models.StageNotStarted
		resetSceneImages(next.Scenes, pl.IDs)
	}
	if pl.ClearAudio {
		next.GeneratedAudio = removeAudio(next.GeneratedAudio, pl.IDs)
		next.Stages[models.StageAudio] = models.StageNotStarted
	}
	if pl.ClearVideo {
		next.FinalVideo = nil
		next.Stages[models.StageVideo] = models.StageNotStarted
	}
	next.ProcessingStep = nil
	next.Status = models.ProjectStatusProcessing
	next.Epoch++
	next.UpdatedAt = time.Now()
	return next
}

func removeImages(images []models.GeneratedImage, ids []string) []models.GeneratedImage {
	if len(ids) == 0 {
		return []models.GeneratedImage{}
	}
	drop := idSet(ids)
	out := make([]models.GeneratedImage, 0, len(images))
	for _, img := range images {
		if _, ok := drop[img.ID]; !ok {
			out = append(out, img)
		}
	}
	return out
}

func removeAudio(audio []models.GeneratedAudio, ids []string) []models.GeneratedAudio {
	if len(ids) == 0 {
		return []models.GeneratedAudio{}
	}
	drop := idSet(ids)
	out := make([]models.GeneratedAudio, 0, len(audio))
	for _, a := range audio {
		if _, ok := drop[a.ID]; !ok {
			out = append(out, a)
		}
	}
	return out
}

func resetSceneImages(scenes []models.Scene, ids []string) {
	drop := idSet(ids)
	for i := range scenes {
		if _, ok := drop[scenes[i].ID]; len(ids) == 0 || ok {
			scenes[i].ImageGenerationStatus = models.SceneImagePending
			scenes[i].ImageURL = ""
			scenes[i].ImageError = ""
		}
	}
}

func imageIDs(p models.Project) []string {
	ids := make([]string, 0, len(p.GeneratedImages))
	for _, img := range p.GeneratedImages {
		ids = append(ids, img.ID)
	}
	return ids
}

func audioIDs(p models.Project) []string {
	ids := make([]string, 0, len(p.GeneratedAudio))
	for _, a := range p.GeneratedAudio {
		ids = append(ids, a.ID)
	}
	return ids
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
