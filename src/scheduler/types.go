package scheduler

import (
	"context"

	"peitu-server-go/src/core/course"
)

// ModuleJob describes one background module generation request
type ModuleJob struct {
	CourseID        string
	CourseTitle     string
	ModuleIndex     int
	Title           string
	Description     string
	SlideTitles     []string // planned slide titles from the course outline, may be empty
	PrecedingTitles []string // titles of modules already generated, oldest first
}

// Generator produces the full content of one course module
type Generator interface {
	GenerateModule(ctx context.Context, job ModuleJob) (course.Module, error)
}

// ImageResolver resolves one illustration request to a final URL
type ImageResolver interface {
	Resolve(ctx context.Context, slideTitle, slideContext, keywords string) string
}

// CourseStore is the slice of course.Store the scheduler needs
type CourseStore interface {
	Snapshot(courseID string) (*course.Course, bool)
	ApplyModule(courseID string, moduleIndex int, fresh course.Module) error
	MarkImageLoading(courseID string, moduleIndex, slideIndex, blockIndex int)
	ApplyImage(courseID string, moduleIndex, slideIndex, blockIndex int, url string) error
}
