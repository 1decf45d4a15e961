package models

import (
	"time"

	"gorm.io/datatypes"
)

// 课程快照（每次合并后整体覆盖写入，重启后可恢复最近状态）
type CourseRecord struct {
	ID        string `gorm:"primaryKey"` // 课程UUID
	Title     string
	Snapshot  datatypes.JSON // 课程结构的JSON快照
	CreatedAt time.Time
	UpdatedAt time.Time
}

// 单张配图的最终结果，用于排查与统计
type ResolutionRecord struct {
	ID          uint   `gorm:"primaryKey"`
	CourseID    string `gorm:"index"`
	Keyword     string `gorm:"index"` // 归一化后的原始关键词
	FinalURL    string `gorm:"type:text"`
	Attempts    int    // 实际消耗的尝试次数
	Placeholder bool   // 是否以占位图收场
	CreatedAt   time.Time
}
