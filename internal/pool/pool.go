// Package pool XHR 真实请求的有界并发执行
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"minidebug/internal/logger"
)

// monitorInterval 状态日志输出周期
const monitorInterval = 30 * time.Second

// Stats 工作池运行统计
type Stats struct {
	QueueLen  int   `json:"queueLen"`
	QueueCap  int   `json:"queueCap"`
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
}

// DropRate 拒绝比例，未提交过任务时为 0
func (s Stats) DropRate() float64 {
	if s.Submitted == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(s.Submitted)
}

// Pool 固定数量的 worker 从有界队列取任务执行
type Pool struct {
	size  int
	queue chan func()
	log   logger.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	stopped   bool
	submitted int64
	dropped   int64

	wg sync.WaitGroup
}

// New 创建工作池
// size <= 0 表示不限制并发，每个任务单独起协程；queueCap <= 0 时为 size * 8
func New(size int, queueCap int) *Pool {
	p := &Pool{size: size, log: logger.NewNop()}
	if size <= 0 {
		return p
	}
	if queueCap <= 0 {
		queueCap = size * 8
	}
	p.queue = make(chan func(), queueCap)
	return p
}

// SetLogger 设置日志记录器
func (p *Pool) SetLogger(l logger.Logger) {
	if l != nil {
		p.log = l
	}
}

// IsEnabled 是否启用并发限制
func (p *Pool) IsEnabled() bool { return p.queue != nil }

// Start 启动 worker，ctx 结束或 Stop 后不再接收任务
func (p *Pool) Start(ctx context.Context) {
	if !p.IsEnabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil || p.stopped {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(p.size + 1)
	for i := 0; i < p.size; i++ {
		go p.worker(p.ctx)
	}
	go p.monitor(p.ctx)
}

// Stop 停止 worker 并等待退出，队列中剩余的任务改为单独协程执行
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.stopped = true
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.drain()
}

// drain 取出队列中未执行的任务
func (p *Pool) drain() {
	for {
		select {
		case fn := <-p.queue:
			go p.run(fn)
		default:
			return
		}
	}
}

// Submit 提交任务；未启动、已停止、ctx 已结束或队列已满时返回 false
func (p *Pool) Submit(fn func()) bool {
	if fn == nil {
		return false
	}
	if !p.IsEnabled() {
		go p.run(fn)
		return true
	}

	// 入队与 Stop 互斥，任务不会滞留在已停止的队列中
	p.mu.Lock()
	if p.ctx == nil || p.stopped || p.ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	p.submitted++
	select {
	case p.queue <- fn:
		p.mu.Unlock()
		return true
	default:
		p.dropped++
		st := p.statsLocked()
		p.mu.Unlock()
		p.log.Warn("[Pool] 队列已满，任务被拒绝", "queueCap", st.QueueCap, "submitted", st.Submitted, "dropped", st.Dropped)
		return false
	}
}

// Stats 返回当前统计
func (p *Pool) Stats() Stats {
	if !p.IsEnabled() {
		return Stats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() Stats {
	return Stats{
		QueueLen:  len(p.queue),
		QueueCap:  cap(p.queue),
		Submitted: p.submitted,
		Dropped:   p.dropped,
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-p.queue:
			p.run(fn)
		}
	}
}

// run 执行任务，任务 panic 不影响 worker
func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("[Pool] 任务异常", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// monitor 定期输出队列使用情况
func (p *Pool) monitor(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := p.Stats()
			if st.Submitted == 0 {
				continue
			}
			p.log.Info("[Pool] 工作池状态",
				"queueLen", st.QueueLen,
				"queueCap", st.QueueCap,
				"submitted", st.Submitted,
				"dropped", st.Dropped,
				"dropRate", fmt.Sprintf("%.2f%%", st.DropRate()*100))
		}
	}
}
