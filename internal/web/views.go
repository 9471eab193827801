package web

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="ja">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body data-route="{{.Route}}">
<h1>{{.Title}}</h1>
{{if .User}}<p>ようこそ、{{.User}} さん</p>{{end}}
</body>
</html>
`))

type page struct {
	Title string
	Route string
	User  string
}

// AuthView はログイン画面です。
func AuthView(c *gin.Context) {
	render(c, page{Title: "ログイン", Route: "Auth"})
}

// HomeView はログイン後のホーム画面です。
// userOf はリクエストからユーザー名を取り出します（nil なら表示しません）。
func HomeView(userOf func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := page{Title: "ホーム", Route: "Home"}
		if userOf != nil {
			p.User = userOf(c)
		}
		render(c, p)
	}
}

func render(c *gin.Context, p page) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := pageTemplate.Execute(c.Writer, p); err != nil {
		_ = c.Error(err)
	}
}
