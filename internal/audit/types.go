// Package audit は認証とナビゲーションの監査イベントを非同期に記録します。
package audit

import (
	"context"
	"time"
)

// Kind は監査イベントの種類です。
type Kind string

const (
	KindLogin       Kind = "login"
	KindLoginFailed Kind = "login_failed"
	KindLogout      Kind = "logout"
	KindRedirect    Kind = "redirect"
)

// Event は1件の監査イベントです。
type Event struct {
	Kind    Kind      `json:"kind"`
	Subject string    `json:"subject,omitempty"` // ユーザー名またはルート名
	Detail  string    `json:"detail,omitempty"`  // IP やリダイレクト先など
	At      time.Time `json:"at"`
}

// Recorder は監査イベントを受け取ります。記録の失敗は呼び出し元に返しません。
type Recorder interface {
	Record(ctx context.Context, event Event)
}
