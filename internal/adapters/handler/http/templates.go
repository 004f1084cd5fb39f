package http

import "html/template"

const layoutTemplate = `{{define "header"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.}} - omvstack</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table.fields td { padding: .2em 1em .2em 0; vertical-align: top; }
pre { background: #f4f4f4; padding: 1em; overflow-x: auto; }
.flash { background: #e6f4ea; padding: .6em; }
.flash-error { background: #fce8e6; padding: .6em; }
.actions form, .actions a { display: inline-block; margin-right: .5em; }
.busy { color: #888; }
</style>
</head>
<body>
{{end}}
{{define "footer"}}</body>
</html>
{{end}}`

const listTemplate = `{{define "list"}}{{template "header" "Services"}}
<h1>Services</h1>
{{if .SignedIn}}<form method="post" action="/logout"><button type="submit">Sign out</button></form>
{{end}}<ul>
{{range .Panels}}<li><a href="/panels/{{.ID}}">{{.Title}}</a>{{with index $.Status .Service}} ({{.}}){{end}}</li>
{{end}}</ul>
{{template "footer"}}{{end}}`

const panelTemplate = `{{define "panel"}}{{template "header" .Desc.Title}}
<p><a href="/panels">Services</a></p>
<h1>{{.Desc.Title}}</h1>
{{with .Flash}}<p class="flash">{{.}}</p>{{end}}
{{with .FlashError}}<p class="flash-error">{{.}}</p>{{end}}
<table class="fields">
{{range .Fields}}<tr><td>{{.Label}}</td><td>{{if .Multiline}}<pre>{{.Value}}</pre>{{else}}{{.Value}}{{end}}</td></tr>
{{end}}{{range .Desc.Info}}<tr><td>{{.Label}}</td><td>{{.Value}}</td></tr>
{{end}}</table>
<div class="actions">
{{range .Actions}}{{if .Busy}}<span class="busy">{{.Label}} (in progress)</span>
{{else if .Link}}<a href="{{.URL}}"{{if .External}} target="_blank" rel="noopener"{{end}}>{{.Label}}</a>
{{else if .Input}}<form method="post" action="{{.URL}}"><input name="controller" placeholder="Controller number or all"> <button type="submit">{{.Label}}</button></form>
{{else}}<form method="post" action="{{.URL}}"><button type="submit">{{.Label}}</button></form>
{{end}}{{end}}</div>
{{template "footer"}}{{end}}`

const confirmTemplate = `{{define "confirm"}}{{template "header" .Title}}
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<form method="post" action="{{.URL}}">
<input type="hidden" name="confirm" value="yes">
<button type="submit">Yes</button> <a href="/panels/{{.PanelID}}">No</a>
</form>
{{template "footer"}}{{end}}`

const promptTemplate = `{{define "prompt"}}{{template "header" .Title}}
<h1>{{.Title}}</h1>
<form method="post" action="{{.URL}}">
<label>{{.Message}} <input name="controller" autofocus></label>
<button type="submit">OK</button> <a href="/panels/{{.PanelID}}">Cancel</a>
</form>
{{template "footer"}}{{end}}`

const textTemplate = `{{define "text"}}{{template "header" .Title}}
<h1>{{.Title}}</h1>
<pre>{{.Body}}</pre>
<p>{{with .RefreshURL}}<a href="{{.}}">Refresh</a> {{end}}<a href="/panels/{{.PanelID}}">Close</a></p>
{{template "footer"}}{{end}}`

const loginTemplate = `{{define "login"}}{{template "header" "Sign in"}}
<h1>Sign in</h1>
{{with .Error}}<p class="flash-error">{{.}}</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="next" value="{{.Next}}">
<label>RPC token <input type="password" name="token" autofocus></label>
<button type="submit">Sign in</button>
</form>
{{template "footer"}}{{end}}`

var pages = template.Must(template.New("pages").Parse(
	layoutTemplate + listTemplate + panelTemplate + confirmTemplate + promptTemplate + textTemplate + loginTemplate,
))
