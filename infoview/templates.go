package main

import "html/template"

const pageStyle = `
		<style>
		table {
			border-collapse:collapse;
		}
		table, td, th {
			border:1px solid grey;
			padding: 2px 6px;
		}
		.machine td {
			border: 0px;
		}
		.err {
			color: #b00;
		}
		</style>`

func mustPage(name, body string) *template.Template {
	return template.Must(template.New(name).Parse(`<html>
	<head>` + pageStyle + `
		<title>{{template "title" .}}</title>
	</head>
	<body>
	<code>
		<a href="/">Main</a> <a href="/globals">Globals</a>
		<h2>{{template "title" .}}</h2>
` + body + `
	</code>
	</body>
</html>
`))
}

var mainTemplate = mustPage("main", `{{define "title"}}Core Viewer{{end}}
		Executable: {{.ExecPath}}<br/>
		PID: {{.PID}}<br/>
		<table class="machine">
			<tr><td>Arch = {{.Arch}}</td></tr>
			<tr><td>ByteOrder = {{.ByteOrder}}</td></tr>
			<tr><td>PointerSize = {{.PointerSize}} bytes</td></tr>
			<tr><td>Globals = {{.NumGlobals}}</td></tr>
		</table>
		<h3>Globals of type {{.Tags.Buffer}} or {{.Tags.Entry}}</h3>
		{{if .Rings}}
		<table>
		<tr><td>Name</td><td>Address</td><td>Type</td><td>Value</td></tr>
		{{range .Rings}}
		<tr>
			<td><a href="/var/{{.Name}}">{{.Name}}</a></td>
			<td>{{.Addr}}</td>
			<td>{{.Type}}</td>
			<td>{{.Value}}</td>
		</tr>
		{{end}}
		</table>
		{{else}}
		None found.
		{{end}}`)

var scopesTemplate = mustPage("scopes", `{{define "title"}}Scopes{{end}}
		{{range .Scopes}}
		<br/><a href="/globals?scope={{.}}">{{if .}}{{.}}{{else}}(global namespace){{end}}</a>
		{{end}}`)

var globalsTemplate = mustPage("globals", `{{define "title"}}Scope {{.Scope}}{{end}}
		<table>
		<tr><td>Name</td><td>Address</td><td>Type</td><td>Value</td></tr>
		{{range .Infos}}
		<tr>
			<td><a href="/var/{{.Name}}">{{.Name}}</a></td>
			<td>{{.Addr}}</td>
			<td>{{.Type}}</td>
			<td>{{.Value}}</td>
		</tr>
		{{end}}
		</table>`)

var objTemplate = mustPage("obj", `{{define "title"}}{{.Name}} : {{.Type}}{{end}}
		Object {{.Addr}} is {{.Size}}.
		{{with .Printed}}
		<h3>{{.TypeName}}</h3>
		{{if .Err}}
			<span class="err">&lt;unreadable: {{.Err}}&gt;</span>
		{{else if eq .DisplayHint "array"}}
			{{.Summary}} = {
			<ol>
			{{range .Children}}<li>{{.}}</li>
			{{end}}
			</ol>}
		{{else}}
			{{.Text}}
		{{end}}
		{{end}}

		<h3>Fields</h3>
		<table>
			<tr><td>Field</td><td>Address</td><td>Type</td><td>Value</td></tr>
			{{range .Fields}}
			<tr>
				<td>{{.Name}}</td>
				<td>{{.Addr}}</td>
				<td>{{.Type}}</td>
				<td>{{.Value}}</td>
			</tr>
			{{end}}
		</table>
		{{.FieldsOverflow}}`)
