package export

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/kraitsura/refnet/pkg/contract"
	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/render"
	"github.com/kraitsura/refnet/pkg/tree"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { background: #0f172a; color: #f8fafc; font-family: sans-serif; margin: 0; }
header { display: flex; gap: 1.5rem; align-items: center; padding: 0.75rem 1rem; background: #1e293b; }
header form { display: inline; }
button { background: #3b82f6; color: #fff; border: 0; border-radius: 6px; padding: 0.4rem 0.8rem; cursor: pointer; }
.info { display: grid; grid-template-columns: max-content max-content; gap: 0.2rem 1rem; padding: 0.75rem 1rem; }
.label { color: #94a3b8; }
.error { color: #fca5a5; padding: 0.75rem 1rem; }
.tree { overflow: auto; }
</style>
</head>
<body>
<header>
  <strong>{{.Title}}</strong>
  <span>Users: {{.Stats.Users}}</span>
  <span>Depth: {{.Stats.Depth}}</span>
  {{if .Stats.Failed}}<span>Failed: {{.Stats.Failed}}</span>{{end}}
  {{if .Truncated}}<span>(truncated)</span>{{end}}
  <form method="post" action="/expand-all"><button>Expand all</button></form>
  <form method="post" action="/collapse-all"><button>Collapse all</button></form>
  <form method="post" action="/refresh"><button>Refresh</button></form>
</header>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{with .Focus}}{{if .IsRegistered}}
<div class="info">
  <span class="label">ID</span><span>{{.ID}}</span>
  <span class="label">Upline</span><span>{{$.Upline}}</span>
  <span class="label">Left / right</span><span>{{.LeftCount}} / {{.RightCount}}</span>
  <span class="label">Saved left / right</span><span>{{.SaveLeft}} / {{.SaveRight}}</span>
  <span class="label">Balance</span><span>{{.BalanceCount}}</span>
  <span class="label">Miner rewards</span><span>{{$.Rewards}}</span>
  <span class="label">Status</span><span>{{if .IsMiner}}Miner{{else}}User{{end}}</span>
</div>
{{else}}<p class="error">{{$.NotRegistered}}</p>{{end}}{{end}}
<div class="tree">{{.SVG}}</div>
</body>
</html>
`))

type pageData struct {
	Title         string
	Stats         tree.MappingStats
	Truncated     bool
	Error         string
	Focus         *model.UserRecord
	Upline        string
	Rewards       string
	NotRegistered string
	SVG           template.HTML
}

func (v *ViewerServer) pageHandler(w http.ResponseWriter, r *http.Request) {
	res := v.session.Current()
	focus := v.session.Focus()

	var svg bytes.Buffer
	renderer := render.SVGRenderer{
		ToggleURL: func(id model.NodeID) string { return "/toggle/" + id.String() },
	}
	if err := renderer.Render(&svg, res.Mapping, res.FocusID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := pageData{
		Title:         treeTitle(focus),
		Stats:         res.Mapping.Stats(),
		Truncated:     res.Stats.Truncated,
		Focus:         focus,
		NotRegistered: contract.KindNotRegistered.Message(),
		SVG:           template.HTML(svg.String()),
	}
	if err := v.lastError(); err != nil {
		data.Error = contract.Classify(err).Message()
	}
	if focus != nil {
		data.Upline = "--"
		if !focus.UplineID.IsZero() {
			data.Upline = focus.UplineID.String()
		}
		data.Rewards = model.FormatEther(focus.TotalMinerRewards, 2) + " MATIC"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		v.log.WithError(err).Error("render page")
	}
}
