package scheduler

import (
	"context"
	"fmt"
	"time"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/core/course"
	"peitu-server-go/src/core/utils"
)

// Scheduler drives background course completion: remaining modules are
// generated strictly one at a time, each merged into the store the moment
// it arrives, then its illustrations are resolved before the next module
// request goes out. Sequential on purpose - one upstream request in
// flight per course keeps rate limits and cost predictable.
type Scheduler struct {
	generator Generator
	resolver  ImageResolver
	store     CourseStore
	config    *configs.PipelineConfig
	logger    *utils.Logger
}

// NewScheduler creates a background course scheduler
func NewScheduler(generator Generator, resolver ImageResolver, store CourseStore, config *configs.PipelineConfig, logger *utils.Logger) *Scheduler {
	return &Scheduler{
		generator: generator,
		resolver:  resolver,
		store:     store,
		config:    config,
		logger:    logger,
	}
}

// ScheduleRemaining generates every not-yet-loaded module from startIndex
// onward. A failed module is logged and skipped; later modules still run.
// Blocks until done or ctx is cancelled, so call it on its own goroutine.
func (s *Scheduler) ScheduleRemaining(ctx context.Context, courseID string, startIndex int) {
	snapshot, ok := s.store.Snapshot(courseID)
	if !ok {
		s.logger.Warn(fmt.Sprintf("调度失败，课程不存在: %s", courseID))
		return
	}

	firstRequest := true
	for index := startIndex; index < len(snapshot.Modules); index++ {
		// re-read: an earlier iteration may have changed loaded flags
		current, ok := s.store.Snapshot(courseID)
		if !ok {
			return
		}
		module := current.Modules[index]
		if module.Loaded {
			continue
		}

		// cooldown before every upstream request except the very first
		if !firstRequest {
			if !s.sleep(ctx, s.config.ModuleCooldown) {
				return
			}
		}
		firstRequest = false

		job := ModuleJob{
			CourseID:        courseID,
			CourseTitle:     current.Title,
			ModuleIndex:     index,
			Title:           module.Title,
			Description:     module.Description,
			SlideTitles:     slideTitles(module),
			PrecedingTitles: loadedTitles(current, index),
		}

		fresh, err := s.generator.GenerateModule(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// failure isolation: this module stays a stub, the rest proceed
			s.logger.Error(fmt.Sprintf("模块生成失败 [%d] %s: %v", index, module.Title, err))
			continue
		}

		if err := s.store.ApplyModule(courseID, index, fresh); err != nil {
			s.logger.Error(fmt.Sprintf("模块合并失败 [%d]: %v", index, err))
			continue
		}
		s.logger.Info("模块已生成并合并", map[string]interface{}{
			"course": courseID,
			"module": index,
		})

		s.ResolveModuleImages(ctx, courseID, index)
	}
}

// ResolveModuleImages resolves every pending illustration slot of one
// module, sequentially, with a short pause between completions.
func (s *Scheduler) ResolveModuleImages(ctx context.Context, courseID string, moduleIndex int) {
	snapshot, ok := s.store.Snapshot(courseID)
	if !ok || moduleIndex < 0 || moduleIndex >= len(snapshot.Modules) {
		return
	}

	requests := course.CollectImageRequests(moduleIndex, snapshot.Modules[moduleIndex])
	for i, request := range requests {
		if ctx.Err() != nil {
			return
		}
		s.store.MarkImageLoading(courseID, moduleIndex, request.SlideIndex, request.BlockIndex)

		url := s.resolver.Resolve(ctx, request.SlideTitle, request.SlideContext, request.Keywords)
		if err := s.store.ApplyImage(courseID, moduleIndex, request.SlideIndex, request.BlockIndex, url); err != nil {
			s.logger.Warn(fmt.Sprintf("配图写入失败 %s: %v", request.Keywords, err))
		}

		if i < len(requests)-1 {
			if !s.sleep(ctx, s.config.ImageCooldown) {
				return
			}
		}
	}
}

// sleep waits for d, returning false when ctx is cancelled first
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// slideTitles collects the planned slide titles a module stub carries
func slideTitles(module course.Module) []string {
	var titles []string
	for _, slide := range module.Slides {
		if slide.Title != "" {
			titles = append(titles, slide.Title)
		}
	}
	return titles
}

// loadedTitles collects titles of modules generated before index
func loadedTitles(c *course.Course, index int) []string {
	var titles []string
	for i := 0; i < index && i < len(c.Modules); i++ {
		if c.Modules[i].Loaded {
			titles = append(titles, c.Modules[i].Title)
		}
	}
	return titles
}
