// Package health 提供挂载到业务 HTTP 路由上的健康检查探针。
package health

import (
	"net/http"
	"sync/atomic"
)

// Probe 维护健康检查状态，可挂载到任意 HTTP 路由。
type Probe struct {
	ready    atomic.Bool
	shutdown atomic.Bool
}

// NewProbe 创建健康探针状态。
func NewProbe() *Probe {
	return &Probe{}
}

// SetReady 设置服务就绪状态。
func (p *Probe) SetReady(ready bool) {
	p.ready.Store(ready)
}

// SetShutdown 设置服务关闭状态。
func (p *Probe) SetShutdown(shutdown bool) {
	p.shutdown.Store(shutdown)
}

// LivenessHandler 返回 liveness handler（/health）。
func (p *Probe) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}
}

// ReadinessHandler 返回 readiness handler（/ready）。
// 就绪要求 Ready 已置位且没有进入关闭流程。
func (p *Probe) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if !p.ready.Load() || p.shutdown.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not_ready"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
