// Package guard はルート遷移前に実行されるナビゲーションガードを提供します。
//
// ガードは遷移先ルートのアクセス要件と現在のセッション有無だけを見て、
// そのまま進むか別パスへリダイレクトするかを決めます。
package guard

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/gatekeeper/internal/route"
)

// ErrSessionCheck はセッション確認そのものが失敗したことを表します。
var ErrSessionCheck = errors.New("session check failed")

// Decision はガードの判定結果です。ゼロ値は「そのまま進む」です。
type Decision struct {
	Redirect string
}

// Proceed はリダイレクトなしの判定を返します。
func Proceed() Decision {
	return Decision{}
}

// RedirectTo は指定パスへのリダイレクト判定を返します。
func RedirectTo(path string) Decision {
	return Decision{Redirect: path}
}

// Allowed はリダイレクトが不要かを返します。
func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

func (d Decision) String() string {
	if d.Allowed() {
		return "proceed"
	}
	return "redirect " + d.Redirect
}

// Decide はアクセス要件とセッション有無から判定する純粋関数です。
func Decide(access route.Access, hasSession bool) Decision {
	// 未ログインで保護ルートへ
	if access == route.RequiresSession && !hasSession {
		return RedirectTo(route.PathAuth)
	}
	// ログイン済みでログイン画面へ
	if access == route.PublicOnly && hasSession {
		return RedirectTo(route.PathHome)
	}
	return Proceed()
}

// SessionProvider は現在有効なセッションがあるかを答えます。
type SessionProvider interface {
	HasSession(ctx context.Context) (bool, error)
}

// ProviderFunc は関数を SessionProvider として扱うためのアダプタです。
type ProviderFunc func(ctx context.Context) (bool, error)

// HasSession implements SessionProvider.
func (f ProviderFunc) HasSession(ctx context.Context) (bool, error) {
	return f(ctx)
}

// FailurePolicy はセッション確認が失敗したときの扱いです。
type FailurePolicy int

const (
	// FailClosed は失敗を「セッションなし」として扱います。
	FailClosed FailurePolicy = iota
	// FailWithError は失敗を ErrSessionCheck として呼び出し元へ返します。
	FailWithError
)

// Option は Guard の設定を変更します。
type Option func(*Guard)

// WithFailurePolicy は失敗時の扱いを設定します。
func WithFailurePolicy(p FailurePolicy) Option {
	return func(g *Guard) {
		g.policy = p
	}
}

// WithLogger は診断ログの出力先を設定します。
func WithLogger(logger *log.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// Guard はセッションプロバイダーを保持するナビゲーションガードです。
type Guard struct {
	provider SessionProvider
	policy   FailurePolicy
	logger   *log.Logger
}

// New は Guard を作成します。
func New(provider SessionProvider, opts ...Option) (*Guard, error) {
	if provider == nil {
		return nil, errors.New("session provider is nil")
	}
	g := &Guard{provider: provider, policy: FailClosed}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Evaluate は遷移先ルートについて判定します。
// 遷移ごとにプロバイダーへ1回だけ問い合わせ、結果はキャッシュしません。
func (g *Guard) Evaluate(ctx context.Context, to route.Route) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	hasSession, err := g.provider.HasSession(ctx)
	if err != nil {
		// 呼び出し側のキャンセルは判定に変換しない
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Decision{}, ctxErr
		}
		if g.logger != nil {
			g.logger.Printf("guard: session check failed route=%s: %v", to.Name, err)
		}
		if g.policy == FailWithError {
			return Decision{}, fmt.Errorf("%w: %w", ErrSessionCheck, err)
		}
		hasSession = false
	}

	return Decide(to.Access(), hasSession), nil
}
