package pipeline

// Recorder 接收流水线事件用于监控，实现必须并发安全
type Recorder interface {
	StageStarted(stage string)
	StageFinished(stage, outcome string)
	ArtifactFinished(stage, status string)
	PushMerged()
	PushDropped(reason string)
}

type nopRecorder struct{}

func (nopRecorder) StageStarted(string) {}

func (nopRecorder) StageFinished(string, string) {}

func (nopRecorder) ArtifactFinished(string, string) {}

func (nopRecorder) PushMerged() {}

func (nopRecorder) PushDropped(string) {}
