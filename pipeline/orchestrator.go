package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"StoryToVideo-client/models"
)

// DefaultFanOut 单次阶段执行中图片/音频子请求的并发上限
const DefaultFanOut = 4

// Generator 远端生成服务
type Generator interface {
	AnalyzeText(ctx context.Context, text string) ([]models.Scene, error)
	GenerateImages(ctx context.Context, projectID string, chunks []models.TextChunk) ([]models.GeneratedImage, error)
	GenerateAudio(ctx context.Context, projectID string, chunks []models.TextChunk) ([]models.GeneratedAudio, error)
	GenerateVideo(ctx context.Context, projectID string) (*models.GeneratedVideo, error)
	ValidateGeneration(ctx context.Context, projectID string) (models.ValidationResult, error)
}

// Options 零值使用默认配置
type Options struct {
	FanOut   int
	Logger   *slog.Logger
	Recorder Recorder
}

// BatchResult 一次图片或音频阶段执行的汇总
type BatchResult struct {
	Stage      models.Stage `json:"stage"`
	Dispatched int          `json:"dispatched"`
	Completed  int          `json:"completed"`
	Failed     int          `json:"failed"`
	Pending    int          `json:"pending"`
}

// Orchestrator 向远端发起阶段请求，并把结果写回 arena
type Orchestrator struct {
	arena    *Arena
	gen      Generator
	tracker  Tracker
	fanOut   int
	logger   *slog.Logger
	recorder Recorder
}

func NewOrchestrator(arena *Arena, gen Generator, opts Options) *Orchestrator {
	if opts.FanOut <= 0 {
		opts.FanOut = DefaultFanOut
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Orchestrator{
		arena:    arena,
		gen:      gen,
		tracker:  arena.Tracker(),
		fanOut:   opts.FanOut,
		logger:   opts.Logger.With("component", "orchestrator"),
		recorder: opts.Recorder,
	}
}

func (o *Orchestrator) Arena() *Arena {
	return o.arena
}

// errSuperseded 请求期间阶段已被重置，响应作废
var errSuperseded = errors.New("result superseded")

type regenRequest struct {
	ids []string
}

// startFn 发出请求前准备快照；before 是重新生成清空之前的快照
type startFn func(before models.Project, p *models.Project) error

// begin 在一次 arena 写入中完成：前置条件检查、按需应用重新生成计划、
// 把阶段标为 in_flight。返回发布的快照与发出前的阶段状态
func (o *Orchestrator) begin(projectID string, stage models.Stage, regen *regenRequest, start startFn) (models.Project, models.StageStatus, error) {
	var (
		prior    models.StageStatus
		rejected error
	)
	snap, err := o.arena.Update(projectID, func(p models.Project) (models.Project, error) {
		before := p.Clone()
		check := o.tracker.CheckRun
		if regen != nil {
			check = o.tracker.CheckRegenerate
		}
		if err := check(p, stage); err != nil {
			// 源文本为空时分析阶段直接失败
			if stage == models.StageAnalysis && errors.Is(err, ErrValidation) && strings.TrimSpace(p.TextContent) == "" &&
				o.tracker.Status(p, stage) != models.StageCompleted {
				p.Stages[stage] = models.StageFailed
				p.ProcessingStep = nil
				rejected = Wrap(ErrValidation, string(stage), "run", "text content is empty", nil)
				return p, nil
			}
			return p, err
		}
		if regen != nil {
			p = PlanRegeneration(p, stage, regen.ids).Apply(p)
		}
		prior = o.tracker.Status(p, stage)
		if err := start(before, &p); err != nil {
			return p, err
		}
		p.Stages[stage] = models.StageInFlight
		p.UpdatedAt = time.Now()
		return p, nil
	})
	if err != nil {
		return snap, prior, err
	}
	if rejected != nil {
		return snap, prior, rejected
	}
	o.recorder.StageStarted(string(stage))
	return snap, prior, nil
}

// settle 写回响应。快照不再等待该响应时 apply 返回 errSuperseded；
// 这类结果以及已关闭项目的结果都会被丢弃
func (o *Orchestrator) settle(projectID string, stage models.Stage, apply func(p *models.Project) error) bool {
	_, err := o.arena.Update(projectID, func(p models.Project) (models.Project, error) {
		if err := apply(&p); err != nil {
			return p, err
		}
		p.UpdatedAt = time.Now()
		return p, nil
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrNotFound), errors.Is(err, errSuperseded):
		o.logger.Debug("dropping stale stage result", "project_id", projectID, "stage", stage, "reason", err)
		return false
	default:
		o.logger.Warn("apply stage result", "project_id", projectID, "stage", stage, "error", err)
		return false
	}
}

// abort 结束单请求阶段：网络错误恢复原状态，其余错误标记失败
func (o *Orchestrator) abort(projectID string, stage models.Stage, prior models.StageStatus, cause error, restore func(p *models.Project)) {
	network := errors.Is(cause, ErrNetwork) || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded)
	o.settle(projectID, stage, func(p *models.Project) error {
		if p.Stages.Get(stage) != models.StageInFlight {
			return errSuperseded
		}
		p.ProcessingStep = nil
		if network {
			p.Stages[stage] = prior
			if restore != nil {
				restore(p)
			}
			return nil
		}
		p.Stages[stage] = models.StageFailed
		return nil
	})
	outcome := "failed"
	if network {
		outcome = "network_error"
	}
	o.recorder.StageFinished(string(stage), outcome)
	o.logger.Warn("stage request failed", "project_id", projectID, "stage", stage, "error", cause)
}

// RunAnalysis 把源文本分析为场景
func (o *Orchestrator) RunAnalysis(ctx context.Context, projectID string) ([]models.Scene, error) {
	return o.runAnalysis(ctx, projectID, nil)
}

func (o *Orchestrator) runAnalysis(ctx context.Context, projectID string, regen *regenRequest) ([]models.Scene, error) {
	var text string
	_, prior, err := o.begin(projectID, models.StageAnalysis, regen, func(_ models.Project, p *models.Project) error {
		text = p.TextContent
		p.ProcessingStep = &models.ProcessingStep{Current: string(models.StageAnalysis), Total: 1, CurrentOperation: "analyzing text"}
		return nil
	})
	if err != nil {
		return nil, err
	}

	scenes, err := o.gen.AnalyzeText(ctx, text)
	if err == nil && len(scenes) == 0 {
		err = Wrap(ErrValidation, string(models.StageAnalysis), "analyze", "no scenes returned", nil)
	}
	if err != nil {
		o.abort(projectID, models.StageAnalysis, prior, err, nil)
		return nil, fmt.Errorf("run analysis: %w", err)
	}

	scenes = models.NormalizeScenes(scenes)
	applied := o.settle(projectID, models.StageAnalysis, func(p *models.Project) error {
		if p.Stages.Get(models.StageAnalysis) != models.StageInFlight || p.TextContent != text {
			return errSuperseded
		}
		p.Scenes = scenes
		p.Stages[models.StageAnalysis] = models.StageCompleted
		p.ProcessingStep = nil
		return nil
	})
	if !applied {
		o.recorder.StageFinished(string(models.StageAnalysis), "dropped")
		return scenes, nil
	}
	o.recorder.StageFinished(string(models.StageAnalysis), string(models.StageCompleted))
	o.logger.Info("analysis completed", "project_id", projectID, "scenes", len(scenes))
	return scenes, nil
}

// RunImageGeneration 每个 chunk 一个请求；chunks 为空时按场景生成
func (o *Orchestrator) RunImageGeneration(ctx context.Context, projectID string, chunks []models.TextChunk) (BatchResult, error) {
	return o.runImages(ctx, projectID, chunks, nil)
}

func (o *Orchestrator) runImages(ctx context.Context, projectID string, chunks []models.TextChunk, regen *regenRequest) (BatchResult, error) {
	stage := models.StageImages
	var dispatched []models.TextChunk
	_, _, err := o.begin(projectID, stage, regen, func(before models.Project, p *models.Project) error {
		dispatched = prepareChunks(chunks, regen, before, stage)
		if len(dispatched) == 0 {
			return Wrap(ErrValidation, string(stage), "run", "no chunks to generate", nil)
		}
		now := time.Now().UnixMilli()
		for _, c := range dispatched {
			upsertImage(p, models.GeneratedImage{
				ID:        c.ID,
				Prompt:    c.ImagePrompt,
				Order:     c.Order,
				Status:    models.ArtifactGenerating,
				Timestamp: now,
			})
			syncSceneImage(p, c.ID, models.SceneImageProcessing, "", "")
		}
		p.ProcessingStep = &models.ProcessingStep{Current: string(stage), Total: len(dispatched), CurrentOperation: "generating images"}
		return nil
	})
	if err != nil {
		return BatchResult{Stage: stage}, err
	}

	errs := o.fanOutChunks(ctx, dispatched, func(ctx context.Context, c models.TextChunk) error {
		images, err := o.gen.GenerateImages(ctx, projectID, []models.TextChunk{c})
		if err != nil {
			o.settleImage(projectID, models.GeneratedImage{ID: c.ID, Status: models.ArtifactError}, err.Error())
			return err
		}
		img, ok := pickImage(images, c.ID)
		if !ok {
			// 结果由推送通道送达
			return nil
		}
		img.ID = c.ID
		if img.Order == 0 {
			img.Order = c.Order
		}
		if img.Prompt == "" {
			img.Prompt = c.ImagePrompt
		}
		img.Status = models.NormalizeArtifactStatus(img.Status)
		o.settleImage(projectID, img, "")
		return nil
	})
	return o.finishBatch(projectID, stage, dispatched, errs)
}

func (o *Orchestrator) settleImage(projectID string, img models.GeneratedImage, reason string) {
	applied := o.settle(projectID, models.StageImages, func(p *models.Project) error {
		i := p.ImageByID(img.ID)
		if i < 0 || p.GeneratedImages[i].Status != models.ArtifactGenerating {
			return errSuperseded
		}
		cur := p.GeneratedImages[i]
		if img.URL == "" {
			img.URL = cur.URL
		}
		if img.Prompt == "" {
			img.Prompt = cur.Prompt
		}
		if img.Order == 0 {
			img.Order = cur.Order
		}
		if img.Timestamp == 0 {
			img.Timestamp = time.Now().UnixMilli()
		}
		p.GeneratedImages[i] = img
		switch img.Status {
		case models.ArtifactCompleted:
			syncSceneImage(p, img.ID, models.SceneImageCompleted, img.URL, "")
		case models.ArtifactError:
			syncSceneImage(p, img.ID, models.SceneImageFailed, "", reason)
		}
		advanceStep(p, models.StageImages, img.Status)
		return nil
	})
	if applied && models.IsTerminalArtifact(img.Status) {
		o.recorder.ArtifactFinished(string(models.StageImages), img.Status)
	}
}

// RunAudioGeneration 每个 chunk 一个配音请求
func (o *Orchestrator) RunAudioGeneration(ctx context.Context, projectID string, chunks []models.TextChunk) (BatchResult, error) {
	return o.runAudio(ctx, projectID, chunks, nil)
}

func (o *Orchestrator) runAudio(ctx context.Context, projectID string, chunks []models.TextChunk, regen *regenRequest) (BatchResult, error) {
	stage := models.StageAudio
	var dispatched []models.TextChunk
	_, _, err := o.begin(projectID, stage, regen, func(before models.Project, p *models.Project) error {
		dispatched = prepareChunks(chunks, regen, before, stage)
		if len(dispatched) == 0 {
			return Wrap(ErrValidation, string(stage), "run", "no chunks to generate", nil)
		}
		now := time.Now().UnixMilli()
		for _, c := range dispatched {
			upsertAudio(p, models.GeneratedAudio{
				ID:        c.ID,
				Text:      c.AudioText,
				Status:    models.ArtifactGenerating,
				Timestamp: now,
			})
		}
		p.ProcessingStep = &models.ProcessingStep{Current: string(stage), Total: len(dispatched), CurrentOperation: "generating audio"}
		return nil
	})
	if err != nil {
		return BatchResult{Stage: stage}, err
	}

	errs := o.fanOutChunks(ctx, dispatched, func(ctx context.Context, c models.TextChunk) error {
		audio, err := o.gen.GenerateAudio(ctx, projectID, []models.TextChunk{c})
		if err != nil {
			o.settleAudio(projectID, models.GeneratedAudio{ID: c.ID, Status: models.ArtifactError})
			return err
		}
		a, ok := pickAudio(audio, c.ID)
		if !ok {
			return nil
		}
		a.ID = c.ID
		if a.Text == "" {
			a.Text = c.AudioText
		}
		a.Status = models.NormalizeArtifactStatus(a.Status)
		o.settleAudio(projectID, a)
		return nil
	})
	return o.finishBatch(projectID, stage, dispatched, errs)
}

func (o *Orchestrator) settleAudio(projectID string, a models.GeneratedAudio) {
	applied := o.settle(projectID, models.StageAudio, func(p *models.Project) error {
		i := p.AudioByID(a.ID)
		if i < 0 || p.GeneratedAudio[i].Status != models.ArtifactGenerating {
			return errSuperseded
		}
		cur := p.GeneratedAudio[i]
		if a.URL == "" {
			a.URL = cur.URL
		}
		if a.Text == "" {
			a.Text = cur.Text
		}
		if a.Timestamp == 0 {
			a.Timestamp = time.Now().UnixMilli()
		}
		p.GeneratedAudio[i] = a
		advanceStep(p, models.StageAudio, a.Status)
		return nil
	})
	if applied && models.IsTerminalArtifact(a.Status) {
		o.recorder.ArtifactFinished(string(models.StageAudio), a.Status)
	}
}

// fanOutChunks 对每个 chunk 调用 call，同时最多 o.fanOut 个；
// 单个失败不取消其他请求，返回全部错误
func (o *Orchestrator) fanOutChunks(ctx context.Context, chunks []models.TextChunk, call func(context.Context, models.TextChunk) error) []error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(o.fanOut)
	for _, c := range chunks {
		g.Go(func() error {
			if err := call(ctx, c); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("chunk %s: %w", c.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// finishBatch 统计当前快照中已发出的产物；仅当所有子请求都失败时阶段执行失败
func (o *Orchestrator) finishBatch(projectID string, stage models.Stage, dispatched []models.TextChunk, errs []error) (BatchResult, error) {
	res := BatchResult{Stage: stage, Dispatched: len(dispatched)}
	outcome := "dropped"
	if snap, ok := o.arena.Get(projectID); ok {
		outcome = string(o.tracker.Status(snap, stage))
		for _, c := range dispatched {
			status := ""
			switch stage {
			case models.StageImages:
				if i := snap.ImageByID(c.ID); i >= 0 {
					status = snap.GeneratedImages[i].Status
				}
			case models.StageAudio:
				if i := snap.AudioByID(c.ID); i >= 0 {
					status = snap.GeneratedAudio[i].Status
				}
			}
			switch status {
			case models.ArtifactCompleted:
				res.Completed++
			case models.ArtifactError:
				res.Failed++
			case models.ArtifactGenerating:
				res.Pending++
			}
		}
	}
	o.recorder.StageFinished(string(stage), outcome)
	o.logger.Info("stage batch finished",
		"project_id", projectID,
		"stage", stage,
		"dispatched", res.Dispatched,
		"completed", res.Completed,
		"failed", res.Failed,
		"pending", res.Pending,
	)
	if len(errs) > 0 && len(errs) == len(dispatched) {
		return res, fmt.Errorf("run %s: every request failed: %w", stage, errors.Join(errs...))
	}
	return res, nil
}

// RunVideoGeneration 用当前图片与音频合成最终视频。
// 返回 nil 视频且无错误时，结果由推送送达
func (o *Orchestrator) RunVideoGeneration(ctx context.Context, projectID string) (*models.GeneratedVideo, error) {
	return o.runVideo(ctx, projectID, nil)
}

func (o *Orchestrator) runVideo(ctx context.Context, projectID string, regen *regenRequest) (*models.GeneratedVideo, error) {
	stage := models.StageVideo
	var (
		previous            *models.GeneratedVideo
		srcImages, srcAudio []string
	)
	_, prior, err := o.begin(projectID, stage, regen, func(_ models.Project, p *models.Project) error {
		previous = p.FinalVideo
		p.FinalVideo = nil
		for _, img := range p.GeneratedImages {
			if img.Status == models.ArtifactCompleted {
				srcImages = append(srcImages, img.ID)
			}
		}
		for _, a := range p.GeneratedAudio {
			if a.Status == models.ArtifactCompleted {
				srcAudio = append(srcAudio, a.ID)
			}
		}
		p.ProcessingStep = &models.ProcessingStep{Current: string(stage), Total: 1, CurrentOperation: "rendering video"}
		return nil
	})
	if err != nil {
		return nil, err
	}

	video, err := o.gen.GenerateVideo(ctx, projectID)
	if err == nil && video != nil && models.NormalizeArtifactStatus(video.Status) == models.ArtifactError {
		err = Wrap(ErrValidation, string(stage), "generate", "remote reported video failure", nil)
	}
	if err != nil {
		o.abort(projectID, stage, prior, err, func(p *models.Project) {
			p.FinalVideo = previous
		})
		return nil, fmt.Errorf("run video: %w", err)
	}
	if video == nil {
		o.recorder.StageFinished(string(stage), "pending")
		return nil, nil
	}

	v := *video
	switch {
	case v.Status == "" && v.URL != "":
		v.Status = models.ArtifactCompleted
	default:
		v.Status = models.NormalizeArtifactStatus(v.Status)
	}
	if v.Status != models.ArtifactCompleted {
		o.recorder.StageFinished(string(stage), "pending")
		return nil, nil
	}
	v.SourceImageIDs = srcImages
	v.SourceAudioIDs = srcAudio
	if v.CreatedAt == "" {
		v.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	applied := o.settle(projectID, stage, func(p *models.Project) error {
		if p.Stages.Get(stage) != models.StageInFlight {
			return errSuperseded
		}
		final := v
		p.FinalVideo = &final
		p.Stages[stage] = models.StageCompleted
		p.ProcessingStep = nil
		return nil
	})
	if !applied {
		o.recorder.StageFinished(string(stage), "dropped")
		return &v, nil
	}
	o.recorder.StageFinished(string(stage), string(models.StageCompleted))
	o.recorder.ArtifactFinished(string(stage), v.Status)
	o.logger.Info("video completed", "project_id", projectID, "video_id", v.ID)
	return &v, nil
}

// Validate 请求远端校验生成结果；校验通过时把已完成的产物标记为 validated
func (o *Orchestrator) Validate(ctx context.Context, projectID string) (models.ValidationResult, error) {
	snap, ok := o.arena.Get(projectID)
	if !ok {
		return models.ValidationResult{}, Wrap(ErrNotFound, "", "validate", projectID, nil)
	}
	if o.tracker.Status(snap, models.StageImages) != models.StageCompleted && o.tracker.Status(snap, models.StageAudio) != models.StageCompleted {
		return models.ValidationResult{}, Wrap(ErrValidation, "", "validate", "nothing generated yet", nil)
	}
	res, err := o.gen.ValidateGeneration(ctx, projectID)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("validate: %w", err)
	}
	if !res.IsValid {
		o.logger.Info("validation reported issues", "project_id", projectID, "issues", len(res.Issues))
		return res, nil
	}
	o.settle(projectID, "", func(p *models.Project) error {
		for i := range p.GeneratedImages {
			if p.GeneratedImages[i].Status == models.ArtifactCompleted {
				p.GeneratedImages[i].Validated = true
			}
		}
		for i := range p.GeneratedAudio {
			if p.GeneratedAudio[i].Status == models.ArtifactCompleted {
				p.GeneratedAudio[i].Validated = true
			}
		}
		return nil
	})
	return res, nil
}

// Run 推进一个阶段，chunks 只对 images / audio 有效
func (o *Orchestrator) Run(ctx context.Context, projectID string, stage models.Stage, chunks []models.TextChunk) (models.Project, error) {
	var err error
	switch stage {
	case models.StageAnalysis:
		_, err = o.runAnalysis(ctx, projectID, nil)
	case models.StageImages:
		_, err = o.runImages(ctx, projectID, chunks, nil)
	case models.StageAudio:
		_, err = o.runAudio(ctx, projectID, chunks, nil)
	case models.StageVideo:
		_, err = o.runVideo(ctx, projectID, nil)
	default:
		err = Wrap(ErrValidation, string(stage), "run", "unknown stage", nil)
	}
	snap, _ := o.arena.Get(projectID)
	return snap, err
}

// Regenerate 清空阶段及其下游后重新执行；ids 把图片/音频的重新生成限定在对应产物
func (o *Orchestrator) Regenerate(ctx context.Context, projectID string, stage models.Stage, ids ...string) (models.Project, error) {
	req := &regenRequest{ids: ids}
	var err error
	switch stage {
	case models.StageAnalysis:
		_, err = o.runAnalysis(ctx, projectID, req)
	case models.StageImages:
		_, err = o.runImages(ctx, projectID, nil, req)
	case models.StageAudio:
		_, err = o.runAudio(ctx, projectID, nil, req)
	case models.StageVideo:
		_, err = o.runVideo(ctx, projectID, req)
	default:
		err = Wrap(ErrValidation, string(stage), "regenerate", "unknown stage", nil)
	}
	if err == nil {
		o.logger.Info("stage regenerated", "project_id", projectID, "stage", stage, "ids", len(ids))
	}
	snap, _ := o.arena.Get(projectID)
	return snap, err
}

// prepareChunks 选出要发出的 chunk：显式传入优先，否则每个场景一个。
// 限定 ids 的重新生成只保留这些 id，非场景 id 沿用旧产物的 prompt 或文本
func prepareChunks(explicit []models.TextChunk, regen *regenRequest, before models.Project, stage models.Stage) []models.TextChunk {
	var base []models.TextChunk
	if len(explicit) > 0 {
		base = explicit
	} else {
		base = models.ChunksFromScenes(before.Scenes)
		if regen != nil && len(regen.ids) > 0 {
			byID := make(map[string]models.TextChunk, len(base))
			for _, c := range base {
				byID[c.ID] = c
			}
			picked := make([]models.TextChunk, 0, len(regen.ids))
			for _, id := range regen.ids {
				if c, ok := byID[id]; ok {
					picked = append(picked, c)
					continue
				}
				if c, ok := chunkFromArtifact(before, stage, id); ok {
					picked = append(picked, c)
				}
			}
			base = picked
		}
	}

	seen := make(map[string]struct{}, len(base))
	out := make([]models.TextChunk, 0, len(base))
	for i, c := range base {
		if strings.TrimSpace(c.ID) == "" {
			c.ID = uuid.NewString()
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		if c.Order == 0 {
			c.Order = i + 1
		}
		if c.ImagePrompt == "" {
			c.ImagePrompt = c.Content
		}
		if c.AudioText == "" {
			c.AudioText = c.Content
		}
		out = append(out, c)
	}
	return out
}

func chunkFromArtifact(p models.Project, stage models.Stage, id string) (models.TextChunk, bool) {
	switch stage {
	case models.StageImages:
		if i := p.ImageByID(id); i >= 0 {
			img := p.GeneratedImages[i]
			return models.TextChunk{ID: id, Content: img.Prompt, Order: img.Order, ImagePrompt: img.Prompt}, true
		}
	case models.StageAudio:
		if i := p.AudioByID(id); i >= 0 {
			a := p.GeneratedAudio[i]
			return models.TextChunk{ID: id, Content: a.Text, AudioText: a.Text}, true
		}
	}
	return models.TextChunk{}, false
}

// upsertImage 同 id 替换，否则追加
func upsertImage(p *models.Project, img models.GeneratedImage) {
	if i := p.ImageByID(img.ID); i >= 0 {
		p.GeneratedImages[i] = img
		return
	}
	p.GeneratedImages = append(p.GeneratedImages, img)
}

func upsertAudio(p *models.Project, a models.GeneratedAudio) {
	if i := p.AudioByID(a.ID); i >= 0 {
		p.GeneratedAudio[i] = a
		return
	}
	p.GeneratedAudio = append(p.GeneratedAudio, a)
}

// syncSceneImage 把图片状态同步到同 id 的场景
func syncSceneImage(p *models.Project, id, status, url, reason string) {
	i := p.SceneByID(id)
	if i < 0 {
		return
	}
	p.Scenes[i].ImageGenerationStatus = status
	p.Scenes[i].ImageURL = url
	p.Scenes[i].ImageError = reason
}

func advanceStep(p *models.Project, stage models.Stage, status string) {
	if p.ProcessingStep == nil || p.ProcessingStep.Current != string(stage) || !models.IsTerminalArtifact(status) {
		return
	}
	step := *p.ProcessingStep
	if step.Completed < step.Total {
		step.Completed++
	}
	p.ProcessingStep = &step
	if step.Completed >= step.Total {
		p.ProcessingStep = nil
	}
}

func pickImage(images []models.GeneratedImage, id string) (models.GeneratedImage, bool) {
	for _, img := range images {
		if img.ID == id {
			return img, true
		}
	}
	if len(images) == 1 {
		return images[0], true
	}
	return models.GeneratedImage{}, false
}

func pickAudio(audio []models.GeneratedAudio, id string) (models.GeneratedAudio, bool) {
	for _, a := range audio {
		if a.ID == id {
			return a, true
		}
	}
	if len(audio) == 1 {
		return audio[0], true
	}
	return models.GeneratedAudio{}, false
}
