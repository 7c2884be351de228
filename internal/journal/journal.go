// Package journal 把成交与每轮快照追加写入 sqlite，供事后审计。
// 引擎只写不读，重启后不会从这里恢复状态。
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Fill 一笔观察到的成交。
type Fill struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"index"`
	CycleID   string `gorm:"index"`
	OrderID   int64  `gorm:"index"`
	Direction string
	Qty       int
	Price     int
	CreatedAt time.Time
}

// Cycle 一轮对账结束时的世界快照。金额单位为美分。
type Cycle struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index"`
	CycleID    string `gorm:"uniqueIndex"`
	Bid        int
	Ask        int
	Last       int
	Cash       int64
	Position   int
	NAV        int64
	BOKnown    bool
	BOCash     int64
	BOPosition int
	BONAV      int64
	OpenBids   int
	OpenAsks   int
	Failures   int
	CreatedAt  time.Time
}

type Journal struct {
	db *gorm.DB
}

// Open 打开（必要时创建）sqlite 文件并迁移表结构。
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&Fill{}, &Cycle{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) RecordFill(ctx context.Context, f Fill) error {
	return j.db.WithContext(ctx).Create(&f).Error
}

func (j *Journal) RecordCycle(ctx context.Context, c Cycle) error {
	return j.db.WithContext(ctx).Create(&c).Error
}

// Fills 按写入顺序返回某次运行的成交，runID 为空返回全部。
func (j *Journal) Fills(ctx context.Context, runID string) ([]Fill, error) {
	var out []Fill
	q := j.db.WithContext(ctx).Order("id")
	if runID != "" {
		q = q.Where("run_id = ?", runID)
	}
	err := q.Find(&out).Error
	return out, err
}

// Cycles 按写入顺序返回某次运行的快照。
func (j *Journal) Cycles(ctx context.Context, runID string) ([]Cycle, error) {
	var out []Cycle
	err := j.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&out).Error
	return out, err
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
