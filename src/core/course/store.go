package course

import (
	"encoding/json"
	"fmt"
	"sync"

	"peitu-server-go/src/core/utils"
	"peitu-server-go/src/models"

	"gorm.io/gorm"
)

// EventType 解析事件类型
type EventType string

const (
	EventModuleLoaded  EventType = "module_loaded"  // 模块内容已生成并合并
	EventImageResolved EventType = "image_resolved" // 某个配图槽位已落定
)

// Event 推送给渲染端的增量事件
type Event struct {
	Type        EventType `json:"type"`
	CourseID    string    `json:"course_id"`
	ModuleIndex int       `json:"module_index"`
	SlideIndex  int       `json:"slide_index,omitempty"`
	BlockIndex  int       `json:"block_index,omitempty"`
	URL         string    `json:"url,omitempty"`
}

// Store 课程共享状态。每次写入都产出新的不可变快照，
// 读方任何时刻拿到的都是完整一致的课程结构，绝无中间态。
type Store struct {
	mu              sync.RWMutex
	courses         map[string]*Course
	subscribers     map[string][]chan Event
	placeholderBase string
	db              *gorm.DB // 可为nil（测试、无持久化部署）
	logger          *utils.Logger
}

// NewStore 创建课程状态仓库
func NewStore(placeholderBase string, db *gorm.DB, logger *utils.Logger) *Store {
	return &Store{
		courses:         make(map[string]*Course),
		subscribers:     make(map[string][]chan Event),
		placeholderBase: placeholderBase,
		db:              db,
		logger:          logger,
	}
}

// Put 放入一门课程（已有同ID则整体替换）
func (s *Store) Put(course *Course) {
	s.mu.Lock()
	s.courses[course.ID] = course.Clone()
	s.mu.Unlock()
	s.persist(course.ID)
}

// Snapshot 取当前快照。返回的指针指向不可变结构，调用方可随意读。
func (s *Store) Snapshot(courseID string) (*Course, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	course, ok := s.courses[courseID]
	return course, ok
}

// ApplyModule 合并一个新生成的模块。走合并协议而不是整体覆盖：
// 该模块可能已有并发解析落定的配图。
func (s *Store) ApplyModule(courseID string, moduleIndex int, fresh Module) error {
	s.mu.Lock()
	current, ok := s.courses[courseID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("课程不存在: %s", courseID)
	}
	if moduleIndex < 0 || moduleIndex >= len(current.Modules) {
		s.mu.Unlock()
		return fmt.Errorf("模块序号越界: %d", moduleIndex)
	}

	next := current.Clone()
	held := next.Modules[moduleIndex]

	merged := fresh
	merged.Loaded = true
	merged.Slides = MergeSlides(held.Slides, fresh.Slides, s.placeholderBase)
	next.Modules[moduleIndex] = merged

	s.courses[courseID] = next
	s.mu.Unlock()

	s.persist(courseID)
	s.publish(Event{
		Type:        EventModuleLoaded,
		CourseID:    courseID,
		ModuleIndex: moduleIndex,
	})
	return nil
}

// MarkImageLoading 把未请求的槽位标记为在途。已在途或已落定则不动。
func (s *Store) MarkImageLoading(courseID string, moduleIndex, slideIndex, blockIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.courses[courseID]
	if !ok {
		return
	}
	block, valid := locateBlock(current, moduleIndex, slideIndex, blockIndex)
	if !valid || block.ImageState != ImageStateNone {
		return
	}

	next := current.Clone()
	nextBlock, _ := locateBlock(next, moduleIndex, slideIndex, blockIndex)
	nextBlock.ImageState = ImageStateLoading
	s.courses[courseID] = next
}

// ApplyImage 写入一个配图解析结果。单调性约束：
// 已落定的非占位图URL不会被改写成别的值，重复写同值无副作用。
func (s *Store) ApplyImage(courseID string, moduleIndex, slideIndex, blockIndex int, url string) error {
	s.mu.Lock()
	current, ok := s.courses[courseID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("课程不存在: %s", courseID)
	}
	block, valid := locateBlock(current, moduleIndex, slideIndex, blockIndex)
	if !valid {
		s.mu.Unlock()
		return fmt.Errorf("配图槽位越界: %d/%d/%d", moduleIndex, slideIndex, blockIndex)
	}

	if isFinalized(*block, s.placeholderBase) && *block.ImageURL != url {
		// 另一个流水线实例已经落定了这个槽位，丢弃迟到的写
		s.mu.Unlock()
		s.logger.Debug("槽位已落定，丢弃迟到的配图写入", map[string]interface{}{
			"course": courseID,
			"slot":   fmt.Sprintf("%d/%d/%d", moduleIndex, slideIndex, blockIndex),
		})
		return nil
	}

	next := current.Clone()
	nextBlock, _ := locateBlock(next, moduleIndex, slideIndex, blockIndex)
	nextBlock.ImageURL = &url
	nextBlock.ImageState = ImageStateDone
	s.courses[courseID] = next
	s.mu.Unlock()

	s.persist(courseID)
	s.publish(Event{
		Type:        EventImageResolved,
		CourseID:    courseID,
		ModuleIndex: moduleIndex,
		SlideIndex:  slideIndex,
		BlockIndex:  blockIndex,
		URL:         url,
	})
	return nil
}

// Subscribe 订阅一门课程的增量事件，返回取消函数
func (s *Store) Subscribe(courseID string) (<-chan Event, func()) {
	ch := make(chan Event, 32)
	s.mu.Lock()
	s.subscribers[courseID] = append(s.subscribers[courseID], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[courseID]
		for i, sub := range subs {
			if sub == ch {
				s.subscribers[courseID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}

// publish 非阻塞推送：慢消费者丢事件，绝不拖住流水线
func (s *Store) publish(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers[event.CourseID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// persist 把当前快照整体写入数据库
func (s *Store) persist(courseID string) {
	if s.db == nil {
		return
	}
	course, ok := s.Snapshot(courseID)
	if !ok {
		return
	}
	data, err := json.Marshal(course)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("课程快照序列化失败: %v", err))
		return
	}
	record := models.CourseRecord{
		ID:       course.ID,
		Title:    course.Title,
		Snapshot: data,
	}
	if err := s.db.Save(&record).Error; err != nil {
		s.logger.Warn(fmt.Sprintf("课程快照落库失败: %v", err))
	}
}

// locateBlock 定位一个配图槽位，越界返回false
func locateBlock(course *Course, moduleIndex, slideIndex, blockIndex int) (*Block, bool) {
	if moduleIndex < 0 || moduleIndex >= len(course.Modules) {
		return nil, false
	}
	module := &course.Modules[moduleIndex]
	if slideIndex < 0 || slideIndex >= len(module.Slides) {
		return nil, false
	}
	slide := &module.Slides[slideIndex]
	if blockIndex < 0 || blockIndex >= len(slide.Blocks) {
		return nil, false
	}
	return &slide.Blocks[blockIndex], true
}
