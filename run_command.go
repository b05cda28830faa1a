package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
	"StoryToVideo-client/service"
)

type stageAction func(ctx context.Context, ws *service.Workspace, projectID string, stage models.Stage) (models.Project, error)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "run <project-id> <stage>",
		Short: "执行一个阶段（analysis|images|audio|video）",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, ctx, args[0], args[1], wait,
				func(c context.Context, ws *service.Workspace, id string, stage models.Stage) (models.Project, error) {
					return ws.Run(c, id, stage, nil)
				})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "Wait this long for pushed results after the request returns (0 to skip)")
	return cmd
}

func newRegenerateCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "regenerate <project-id> <stage> [artifact-ids...]",
		Short: "重新生成阶段结果；images/audio 可只指定部分产物",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args[2:]
			return runStage(cmd, ctx, args[0], args[1], wait,
				func(c context.Context, ws *service.Workspace, id string, stage models.Stage) (models.Project, error) {
					return ws.Regenerate(c, id, stage, ids...)
				})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "Wait this long for pushed results after the request returns (0 to skip)")
	return cmd
}

func runStage(cmd *cobra.Command, ctx *commandContext, projectID, stageArg string, wait time.Duration, action stageAction) error {
	stage, ok := models.ParseStage(stageArg)
	if !ok {
		return fmt.Errorf("unknown stage %q (expected one of %v)", stageArg, models.Stages())
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ws, err := ctx.localWorkspace()
	if err != nil {
		return err
	}
	defer ws.Shutdown()

	if _, err := ws.Open(signalCtx, projectID); err != nil {
		return err
	}
	// 订阅先于请求建立，避免漏掉异步结果
	updates, stop := ws.Watch(projectID)
	defer stop()

	p, err := action(signalCtx, ws, projectID, stage)
	if err != nil {
		return err
	}
	if wait > 0 {
		p = awaitSettled(signalCtx, ws.Tracker(), updates, p, stage, wait)
	}
	fmt.Fprint(cmd.OutOrStdout(), formatProject(ws.Tracker(), p))
	return nil
}

// awaitSettled 等待阶段离开 in_flight，超时或被中断时返回最后一次快照
func awaitSettled(ctx context.Context, tracker pipeline.Tracker, updates <-chan models.Project, p models.Project, stage models.Stage, wait time.Duration) models.Project {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for tracker.Status(p, stage) == models.StageInFlight {
		select {
		case <-ctx.Done():
			return p
		case <-timer.C:
			return p
		case next, ok := <-updates:
			if !ok {
				return p
			}
			p = next
		}
	}
	return p
}
