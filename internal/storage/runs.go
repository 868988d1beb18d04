package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// 采集触发来源
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerOneshot  = "oneshot"
)

// IngestionRun 一次采集的结果记录，用于观察手动刷新与定时任务的执行情况
type IngestionRun struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`
	Trigger    string            `gorm:"size:16;index" json:"trigger"`
	StartedAt  time.Time         `gorm:"index" json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Inserted   int               `json:"inserted"`
	Skipped    bool              `json:"skipped"`
	Error      string            `gorm:"type:text" json:"error"`
	Categories datatypes.JSONMap `json:"categories"`
}

// SaveRun 保存采集记录，ID 为空时自动生成
func (s *Store) SaveRun(ctx context.Context, run *IngestionRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if err := s.DB.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("storage: save run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns 按开始时间倒序返回最近的采集记录
func (s *Store) ListRuns(ctx context.Context, limit int) ([]IngestionRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var list []IngestionRun
	if err := s.DB.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	return list, nil
}
