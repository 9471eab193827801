// Package navigation はルートテーブルとガードを使ったクライアント側のナビゲーションを提供します。
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/yourusername/gatekeeper/internal/guard"
	"github.com/yourusername/gatekeeper/internal/route"
)

const defaultMaxRedirects = 5

var (
	// ErrNotFound は遷移先のパスがルートテーブルにない場合のエラーです。
	ErrNotFound = errors.New("route not found")
	// ErrRedirectLoop はリダイレクト回数が上限を超えた場合のエラーです。
	ErrRedirectLoop = errors.New("too many redirects")
	// ErrSuperseded は後から開始されたナビゲーションに取って代わられた場合のエラーです。
	ErrSuperseded = errors.New("navigation superseded")
)

// Result は確定したナビゲーションの結果です。
type Result struct {
	Route      route.Route
	From       string   // 遷移元のパス（初回は空）
	Redirected bool     // ガードによってリダイレクトされたか
	Hops       []string // たどったリダイレクト先
}

// Outcome は NavigateAsync の完了通知です。
type Outcome struct {
	Result Result
	Err    error
}

// Option は Navigator の設定を変更します。
type Option func(*Navigator)

// WithMaxRedirects はリダイレクトの上限回数を設定します。
func WithMaxRedirects(n int) Option {
	return func(nav *Navigator) {
		if n >= 0 {
			nav.maxRedirects = n
		}
	}
}

// WithLogger はナビゲーションのログ出力先を設定します。
func WithLogger(logger *log.Logger) Option {
	return func(nav *Navigator) {
		nav.logger = logger
	}
}

// Navigator はルートテーブルとガードを束ねたルーターです。
// 同時に進行するナビゲーションは常に最新の1件だけが確定します。
type Navigator struct {
	table        *route.Table
	guard        *guard.Guard
	maxRedirects int
	logger       *log.Logger

	mu        sync.Mutex
	seq       uint64
	cancel    context.CancelCauseFunc
	current   route.Route
	committed bool
}

// New は Navigator を作成します。
func New(table *route.Table, g *guard.Guard, opts ...Option) (*Navigator, error) {
	if table == nil {
		return nil, errors.New("route table is nil")
	}
	if g == nil {
		return nil, errors.New("guard is nil")
	}
	nav := &Navigator{
		table:        table,
		guard:        g,
		maxRedirects: defaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(nav)
	}
	return nav, nil
}

// Current は最後に確定したルートを返します。
func (n *Navigator) Current() (route.Route, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current, n.committed
}

// Navigate は path へ遷移します。セッション確認が終わるまでブロックし、
// ガードのリダイレクトをたどってから最終的なルートを確定します。
// 進行中の古いナビゲーションはキャンセルされ ErrSuperseded を返します。
func (n *Navigator) Navigate(ctx context.Context, path string) (Result, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	n.mu.Lock()
	if n.cancel != nil {
		n.cancel(ErrSuperseded)
	}
	n.seq++
	id := n.seq
	n.cancel = cancel
	from := ""
	if n.committed {
		from = n.current.Path
	}
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		if n.seq == id {
			n.cancel = nil
		}
		n.mu.Unlock()
		cancel(nil)
	}()

	res, err := n.resolve(ctx, path)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrSuperseded) {
			return Result{}, ErrSuperseded
		}
		return Result{}, err
	}
	res.From = from

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seq != id {
		return Result{}, ErrSuperseded
	}
	n.current = res.Route
	n.committed = true
	if n.logger != nil && res.Redirected {
		n.logger.Printf("navigation: %s redirected to %s", path, res.Route.Path)
	}
	return res, nil
}

// NavigateAsync は Navigate をバックグラウンドで実行し、結果を1回だけ送ります。
func (n *Navigator) NavigateAsync(ctx context.Context, path string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		res, err := n.Navigate(ctx, path)
		ch <- Outcome{Result: res, Err: err}
		close(ch)
	}()
	return ch
}

func (n *Navigator) resolve(ctx context.Context, path string) (Result, error) {
	var hops []string
	target := path
	for {
		r, ok := n.table.Match(target)
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrNotFound, target)
		}

		decision, err := n.guard.Evaluate(ctx, r)
		if err != nil {
			return Result{}, err
		}
		if decision.Allowed() {
			return Result{Route: r, Redirected: len(hops) > 0, Hops: hops}, nil
		}

		if len(hops) >= n.maxRedirects {
			return Result{}, fmt.Errorf("%w: %s -> %v", ErrRedirectLoop, path, hops)
		}
		hops = append(hops, decision.Redirect)
		target = decision.Redirect
	}
}
