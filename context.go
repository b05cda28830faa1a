package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"StoryToVideo-client/config"
	"StoryToVideo-client/logging"
	"StoryToVideo-client/pipeline"
	"StoryToVideo-client/service"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// localWorkspace 单次命令使用的进程内工作区：不持久化，不归档
func (c *commandContext) localWorkspace() (*service.Workspace, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	policy, err := pipeline.ParseReadinessPolicy(cfg.Pipeline.VideoReadiness)
	if err != nil {
		return nil, err
	}
	client := service.NewClientFromConfig(cfg, logger)
	arena := pipeline.NewArena(pipeline.NewTracker(policy))
	orch := pipeline.NewOrchestrator(arena, client, pipeline.Options{
		FanOut: cfg.Pipeline.FanOut,
		Logger: logger,
	})
	reconciler := pipeline.NewReconciler(arena, service.NewPushDialerFromConfig(cfg, logger), logger, nil)
	return service.NewWorkspace(client, orch, reconciler, nil, logger), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
