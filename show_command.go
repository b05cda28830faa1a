package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
	"StoryToVideo-client/service"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "拉取远端项目并打印各阶段状态",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			policy, err := pipeline.ParseReadinessPolicy(cfg.Pipeline.VideoReadiness)
			if err != nil {
				return err
			}
			client := service.NewClientFromConfig(cfg, logger)
			remote, err := client.GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			remote.ID = args[0]
			tracker := pipeline.NewTracker(policy)
			p := tracker.Refresh(service.AdoptRemote(remote))
			fmt.Fprint(cmd.OutOrStdout(), formatProject(tracker, p))
			return nil
		},
	}
}

func newStagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "stages",
		Short:       "列出流程阶段（按执行顺序）",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range models.Stages() {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

// formatProject 项目摘要 + 阶段表
func formatProject(tracker pipeline.Tracker, p models.Project) string {
	var b strings.Builder
	title := p.Title
	if strings.TrimSpace(title) == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(&b, "Project:  %s\n", p.ID)
	fmt.Fprintf(&b, "Title:    %s\n", title)
	fmt.Fprintf(&b, "Status:   %s\n", p.Status)
	if p.ProcessingStep != nil && p.ProcessingStep.Current != "" {
		fmt.Fprintf(&b, "Step:     %s\n", p.ProcessingStep.Current)
	}
	b.WriteString(renderTable(stageColumns, stageRows(tracker, p),
		[]string{"Progress", "", fmt.Sprintf("%d%%", p.Progress)}))
	b.WriteString("\n")
	return b.String()
}

func stageRows(tracker pipeline.Tracker, p models.Project) [][]string {
	caps := tracker.Capabilities(p)
	rows := make([][]string, 0, len(caps))
	for _, stage := range models.Stages() {
		c := caps[stage]
		rows = append(rows, []string{
			string(stage),
			string(c.Status),
			artifactSummary(p, stage),
			yesNo(c.CanRun),
			yesNo(c.CanRegenerate),
		})
	}
	return rows
}

func artifactSummary(p models.Project, stage models.Stage) string {
	switch stage {
	case models.StageAnalysis:
		return strconv.Itoa(len(p.Scenes)) + " scenes"
	case models.StageImages:
		done := 0
		for _, img := range p.GeneratedImages {
			if img.Status == models.ArtifactCompleted {
				done++
			}
		}
		return fmt.Sprintf("%d/%d", done, len(p.GeneratedImages))
	case models.StageAudio:
		done := 0
		for _, a := range p.GeneratedAudio {
			if a.Status == models.ArtifactCompleted {
				done++
			}
		}
		return fmt.Sprintf("%d/%d", done, len(p.GeneratedAudio))
	case models.StageVideo:
		if p.FinalVideo == nil {
			return "-"
		}
		return p.FinalVideo.Status
	}
	return ""
}
