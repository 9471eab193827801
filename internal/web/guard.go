// Package web はページのルーティングとサーバー側のナビゲーションガードを提供します。
package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/gatekeeper/internal/audit"
	"github.com/yourusername/gatekeeper/internal/guard"
	"github.com/yourusername/gatekeeper/internal/route"
)

// GuardMiddleware はページ表示前にガードを評価するミドルウェアを返します。
// リダイレクト判定なら 302 を返して後続のハンドラーを実行しません。
func GuardMiddleware(g *guard.Guard, r route.Route, auditor audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := g.Evaluate(c.Request.Context(), r)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":    "SESSION_CHECK_FAILED",
				"message": "セッションの確認に失敗しました",
			})
			return
		}

		if !decision.Allowed() {
			if auditor != nil {
				auditor.Record(c.Request.Context(), audit.Event{
					Kind:    audit.KindRedirect,
					Subject: r.Name,
					Detail:  decision.Redirect,
				})
			}
			c.Header("Cache-Control", "no-store")
			c.Redirect(http.StatusFound, decision.Redirect)
			c.Abort()
			return
		}

		c.Next()
	}
}

// Register はルートテーブルのすべてのルートを GET で登録します。
func Register(router gin.IRoutes, table *route.Table, g *guard.Guard, auditor audit.Recorder) {
	for _, r := range table.Routes() {
		handlers := []gin.HandlerFunc{GuardMiddleware(g, r, auditor)}
		if r.View != nil {
			handlers = append(handlers, r.View)
		}
		router.GET(r.Path, handlers...)
	}
}
