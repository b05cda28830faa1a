package pipeline

import "StoryToVideo-client/models"

// 各阶段权重，总和 100
const (
	WeightAnalysis = 10
	WeightImages   = 40
	WeightAudio    = 30
	WeightVideo    = 20
)

// ComputeProgress 返回 [0,100] 的整体进度。每个阶段贡献 weight*completed/total，
// 以图片与音频集合的公分母做整数运算，最后只向下取整一次
func ComputeProgress(p models.Project) int {
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
	// 空集合贡献 0
	if imgTotal == 0 {
		imgTotal = 1
	}
	if audTotal == 0 {
		audTotal = 1
	}

	denom := imgTotal * audTotal
	num := 0
	if len(p.Scenes) > 0 {
		num += WeightAnalysis * denom
	}
	num += WeightImages * imgDone * audTotal
	num += WeightAudio * audDone * imgTotal
	if p.FinalVideo != nil && p.FinalVideo.Status == models.ArtifactCompleted {
		num += WeightVideo * denom
	}

	progress := num / denom
	if progress > 100 {
		return 100
	}
	return progress
}
