package order

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// StatusFetcher 查询单个订单最新状态（对账用）。
type StatusFetcher interface {
	OrderStatus(ctx context.Context, id int64) (Status, error)
}

// FillSink 接收新出现的成交，对账器保证每笔成交只投递一次。
type FillSink func(id int64, dir Direction, f Fill)

// Reconciler 订单对账器：刷新挂单状态、投递新成交、剔除已结束的订单。
type Reconciler struct {
	fetcher StatusFetcher
	logger  *zap.Logger

	mu                   sync.Mutex
	totalReconciliations int64
	fetchFailures        int64
}

// NewReconciler 创建订单对账器
func NewReconciler(fetcher StatusFetcher, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{fetcher: fetcher, logger: logger}
}

type fetchResult struct {
	status Status
	err    error
}

// Reconcile 并发查询 refs 中每个订单，全部返回后再汇总。
// 查询失败的订单本轮保持原样；剩余数量为 0 的订单被剔除；输出保持输入顺序。
func (r *Reconciler) Reconcile(ctx context.Context, refs []Ref, sink FillSink) []Ref {
	r.mu.Lock()
	r.totalReconciliations++
	r.mu.Unlock()

	results := make([]fetchResult, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			st, err := r.fetcher.OrderStatus(ctx, id)
			results[i] = fetchResult{status: st, err: err}
		}(i, ref.ID)
	}
	wg.Wait()

	next := make([]Ref, 0, len(refs))
	for i, ref := range refs {
		res := results[i]
		if res.err != nil {
			r.mu.Lock()
			r.fetchFailures++
			r.mu.Unlock()
			r.logger.Warn("order status fetch failed",
				zap.Int64("order_id", ref.ID),
				zap.Error(fmt.Errorf("get remote order failed: %w", res.err)))
			next = append(next, ref)
			continue
		}
		updated := r.apply(ref, res.status, sink)
		if updated.Done() {
			r.logger.Debug("order closed",
				zap.Int64("order_id", updated.ID),
				zap.String("direction", string(updated.Status.Direction)),
				zap.Int("fills", len(updated.Status.Fills)))
			continue
		}
		next = append(next, updated)
	}
	return next
}

// apply 投递新增成交并返回更新后的引用。
func (r *Reconciler) apply(ref Ref, st Status, sink FillSink) Ref {
	dir := st.Direction
	if !dir.Valid() {
		dir = ref.Status.Direction
		st.Direction = dir
	}
	if sink != nil {
		for _, f := range NewFills(ref.Status, st) {
			sink(ref.ID, dir, f)
		}
	}
	// 防止交易所返回更短的成交序列导致之后重复记账
	if len(st.Fills) < len(ref.Status.Fills) {
		st.Fills = ref.Status.Fills
	}
	return Ref{ID: ref.ID, Status: st}
}

// ReconcilerStats 对账统计信息
type ReconcilerStats struct {
	TotalReconciliations int64
	FetchFailures        int64
}

// GetStatistics 获取对账统计信息
func (r *Reconciler) GetStatistics() ReconcilerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReconcilerStats{
		TotalReconciliations: r.totalReconciliations,
		FetchFailures:        r.fetchFailures,
	}
}
