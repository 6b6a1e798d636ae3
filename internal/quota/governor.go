// Package quota は上流APIの時間あたりリクエスト枠を管理する。
// USDA FoodData CentralはAPIキーごとに1時間あたりのリクエスト上限を持つため、
// プロセス全体で1つのガバナーを共有し、全ツール呼び出しが同じ予算を消費する。
package quota

import (
	"sync"
	"time"
)

// defaultCapacity はFDCが公表しているAPIキーあたりの時間クォータ。
const defaultCapacity = 1000

// window は固定ウィンドウの長さ。FDCのクォータは1時間単位。
const window = time.Hour

// Governor は固定ウィンドウ方式で上流リクエスト予算を管理する。
// Reserveは呼び出し元をブロックしない助言型であり、
// 拒否された場合に待機するか失敗させるかは呼び出し元が決める。
type Governor struct {
	mu          sync.Mutex
	capacity    int
	count       int
	windowStart time.Time
	now         func() time.Time // テスト用に差し替え可能
}

// NewGovernor は容量capacityのGovernorを生成する。
// capacityが0以下の場合はFDCの公表クォータ（1000/時）を使用する。
func NewGovernor(capacity int) *Governor {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Governor{
		capacity: capacity,
		now:      time.Now,
	}
}

// Reserve は1リクエスト分の枠を予約する。
// 枠が確保できた場合はok=trueを返す。
// 枠が枯渇している場合はok=falseと、ウィンドウがリセットされるまでの
// 残り時間を返す。
// 加算と判定はミューテックスで直列化されるため、並行呼び出しで
// 残り1枠を複数の呼び出しが同時に確保することはない。
func (g *Governor) Reserve() (ok bool, retryAfter time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	// ウィンドウが経過していればカウンタをリセットして新しいウィンドウを開始する
	if g.windowStart.IsZero() || now.Sub(g.windowStart) >= window {
		g.windowStart = now
		g.count = 0
	}

	if g.count < g.capacity {
		g.count++
		return true, 0
	}

	remaining := window - now.Sub(g.windowStart)
	if remaining < 0 {
		remaining = 0
	}
	return false, remaining
}

// Remaining は現在のウィンドウで残っているリクエスト枠数を返す。
// メトリクスおよびテスト用。
func (g *Governor) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.windowStart.IsZero() && g.now().Sub(g.windowStart) >= window {
		return g.capacity
	}
	return g.capacity - g.count
}
