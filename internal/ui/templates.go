package ui

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/me/bloodlens/internal/analysis"
	"github.com/me/bloodlens/pkg/model"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"humanTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return humanize.Time(t)
	},
	"bytes": func(n uint64) string {
		return humanize.IBytes(n)
	},
	"comma": func(n int) string {
		return humanize.Comma(int64(n))
	},
	"add": func(a, b int) int {
		return a + b
	},
	"truncate": func(s string, n int) string {
		if len(s) <= n {
			return s
		}
		return s[:n] + "..."
	},
	"typeLabel": func(t string) string {
		for _, o := range analysis.Options {
			if o.Value == t {
				return o.Label
			}
		}
		return t
	},
	"isAssistant": func(role string) bool {
		return role == model.RoleAssistant
	},
	"join": strings.Join,
}

// renderTemplate renders a page template inside the layout.
func renderTemplate(w io.Writer, name string, data map[string]any) error {
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}

	layout, ok := templates["layout"]
	if !ok {
		return fmt.Errorf("layout template not found")
	}

	tmpl, err := template.New("layout").Funcs(templateFuncs).Parse(layout)
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}

	_, err = tmpl.New("content").Parse(content)
	if err != nil {
		return fmt.Errorf("parse content: %w", err)
	}

	// Add shared components.
	for compName, compContent := range templates {
		if strings.HasPrefix(compName, "components/") {
			_, err = tmpl.New(filepath.Base(compName)).Parse(compContent)
			if err != nil {
				return fmt.Errorf("parse component %s: %w", compName, err)
			}
		}
	}

	return tmpl.Execute(w, data)
}

// renderFragment renders an HTMX fragment without the layout.
func renderFragment(w io.Writer, name string, data map[string]any) error {
	content, ok := fragments[name]
	if !ok {
		return fmt.Errorf("fragment not found: %s", name)
	}
	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(content)
	if err != nil {
		return fmt.Errorf("parse fragment %s: %w", name, err)
	}
	return tmpl.Execute(w, data)
}

var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
    <script src="https://cdn.tailwindcss.com"></script>
    <style>
        :root { --bl-primary: {{.Theme.PrimaryColor}}; --bl-secondary: {{.Theme.SecondaryColor}}; }
        .bl-primary { background-color: var(--bl-primary); }
        .bl-primary-text { color: var(--bl-primary); }
        .bl-secondary { background-color: var(--bl-secondary); }
        .htmx-indicator { display: none; }
        .htmx-request .htmx-indicator { display: inline-block; }
        .htmx-request.htmx-indicator { display: inline-block; }
    </style>
</head>
<body class="bg-gray-50 min-h-screen flex flex-col">
    {{if .Session}}
    <nav class="bg-white shadow-sm border-b">
        <div class="max-w-7xl mx-auto px-4 sm:px-6 lg:px-8">
            <div class="flex justify-between h-16">
                <div class="flex">
                    <a href="/" class="flex items-center px-2 py-2 text-xl font-bold bl-primary-text">
                        BloodLens
                    </a>
                    <div class="hidden sm:ml-6 sm:flex sm:space-x-8">
                        <a href="/" class="border-transparent text-gray-500 hover:border-gray-300 hover:text-gray-700 inline-flex items-center px-1 pt-1 border-b-2 text-sm font-medium">
                            Analyze
                        </a>
                        <a href="/reports" class="border-transparent text-gray-500 hover:border-gray-300 hover:text-gray-700 inline-flex items-center px-1 pt-1 border-b-2 text-sm font-medium">
                            Reports
                        </a>
                    </div>
                </div>
                <div class="flex items-center">
                    <span class="text-sm text-gray-500 mr-4">{{.Session.User.DisplayName}}</span>
                    <a href="/logout" class="text-sm text-gray-500 hover:text-gray-700">Logout</a>
                </div>
            </div>
        </div>
    </nav>
    {{end}}

    <main class="flex-1 w-full max-w-7xl mx-auto py-6 sm:px-6 lg:px-8">
        {{template "content" .}}
    </main>

    <footer class="bl-secondary text-white text-xs text-center py-3">
        BloodLens provides AI-generated information only. Always consult a qualified physician.
    </footer>
</body>
</html>`,

	"login": `{{define "content"}}
<div class="flex items-center justify-center py-12 px-4 sm:px-6 lg:px-8">
    <div class="max-w-md w-full space-y-8">
        <div>
            <h2 class="mt-6 text-center text-3xl font-extrabold text-gray-900">BloodLens</h2>
            <p class="mt-2 text-center text-sm text-gray-600">Sign in to analyze your blood reports</p>
        </div>
        {{if .Error}}
        <div class="rounded-md bg-red-50 p-4">
            <div class="text-sm text-red-700">{{.Error}}</div>
        </div>
        {{end}}
        <form class="mt-8 space-y-6" action="/login" method="POST">
            <div class="rounded-md shadow-sm -space-y-px">
                <div>
                    <label for="email" class="sr-only">Email</label>
                    <input id="email" name="email" type="email" required
                           class="appearance-none rounded-none relative block w-full px-3 py-2 border border-gray-300 placeholder-gray-500 text-gray-900 rounded-t-md sm:text-sm"
                           placeholder="Email address">
                </div>
                <div>
                    <label for="password" class="sr-only">Password</label>
                    <input id="password" name="password" type="password" required
                           class="appearance-none rounded-none relative block w-full px-3 py-2 border border-gray-300 placeholder-gray-500 text-gray-900 rounded-b-md sm:text-sm"
                           placeholder="Password">
                </div>
            </div>
            <button type="submit" class="w-full flex justify-center py-2 px-4 text-sm font-medium rounded-md text-white bl-primary hover:opacity-90">
                Sign in
            </button>
        </form>
        <p class="text-center text-sm text-gray-600">
            No account yet? <a href="/signup" class="bl-primary-text font-medium">Sign up</a>
        </p>
    </div>
</div>
{{end}}`,

	"signup": `{{define "content"}}
<div class="flex items-center justify-center py-12 px-4 sm:px-6 lg:px-8">
    <div class="max-w-md w-full space-y-8">
        <h2 class="mt-6 text-center text-3xl font-extrabold text-gray-900">Create your account</h2>
        {{if .Error}}
        <div class="rounded-md bg-red-50 p-4">
            <div class="text-sm text-red-700">{{.Error}}</div>
        </div>
        {{end}}
        <form class="space-y-4" action="/signup" method="POST">
            <input name="name" type="text" value="{{.Form.Name}}" required placeholder="Full name"
                   class="block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
            <input name="email" type="email" value="{{.Form.Email}}" required placeholder="Email address"
                   class="block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
            <input name="password" type="password" required placeholder="Password"
                   class="block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
            <input name="confirm_password" type="password" required placeholder="Confirm password"
                   class="block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
            <p class="text-xs text-gray-500">At least 8 characters with an uppercase letter, a lowercase letter and a number.</p>
            <button type="submit" class="w-full py-2 px-4 text-sm font-medium rounded-md text-white bl-primary hover:opacity-90">
                Sign up
            </button>
        </form>
        <p class="text-center text-sm text-gray-600">
            Already registered? <a href="/login" class="bl-primary-text font-medium">Sign in</a>
        </p>
    </div>
</div>
{{end}}`,

	"index": `{{define "content"}}
<div class="px-4 py-6 sm:px-0 grid grid-cols-1 lg:grid-cols-4 gap-8">
    {{template "chat_sidebar" .}}

    <div class="lg:col-span-3 space-y-8">
        <div>
            <h1 class="text-2xl font-semibold text-gray-900">Blood Report Analysis</h1>
            <p class="mt-1 text-sm text-gray-500">
                Welcome, {{.Session.User.DisplayName}}. {{.Remaining}} of {{.Limit}} analyses left today.
            </p>
        </div>

        {{if .Error}}
        <div class="rounded-md bg-red-50 p-4">
            <div class="text-sm text-red-700">{{.Error}}</div>
        </div>
        {{end}}

        <form action="/analyze" method="POST" enctype="multipart/form-data" class="bg-white shadow rounded-lg p-6 space-y-6">
            <div class="grid grid-cols-1 sm:grid-cols-2 gap-4">
                <label class="block text-sm font-medium text-gray-700">Patient name
                    <input name="patient_name" type="text" value="{{.Form.PatientName}}" required
                           class="mt-1 block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
                </label>
                <label class="block text-sm font-medium text-gray-700">Age
                    <input name="age" type="number" min="0" max="120" value="{{.Form.Age}}" required
                           class="mt-1 block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
                </label>
                <label class="block text-sm font-medium text-gray-700">Gender
                    <select name="gender" class="mt-1 block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
                        {{$gender := .Form.Gender}}
                        {{range .Genders}}<option value="{{.}}" {{if eq . $gender}}selected{{end}}>{{.}}</option>{{end}}
                    </select>
                </label>
                <label class="block text-sm font-medium text-gray-700">Date of report
                    <input name="report_date" type="date" value="{{.Form.Date}}"
                           class="mt-1 block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
                </label>
            </div>

            <fieldset class="space-y-2">
                <label class="inline-flex items-center text-sm text-gray-700">
                    <input name="include_bp" type="checkbox" class="mr-2" {{if .Form.IncludeBP}}checked{{end}}>
                    Include blood pressure
                </label>
                <div class="grid grid-cols-2 gap-4">
                    <input name="systolic_bp" type="number" step="any" value="{{.Form.Systolic}}" placeholder="Systolic (mmHg)"
                           class="block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
                    <input name="diastolic_bp" type="number" step="any" value="{{.Form.Diastolic}}" placeholder="Diastolic (mmHg)"
                           class="block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
                </div>
            </fieldset>

            <label class="block text-sm font-medium text-gray-700">Analysis
                <select name="analysis_type" class="mt-1 block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
                    {{$type := .Form.Type}}
                    {{range .AnalysisTypes}}<option value="{{.Value}}" {{if eq .Value $type}}selected{{end}}>{{.Label}}</option>{{end}}
                </select>
            </label>

            <div class="space-y-2">
                <label class="block text-sm font-medium text-gray-700">Blood report (PDF, max {{bytes .MaxUploadBytes}})
                    <input name="report_file" type="file" accept="application/pdf,.pdf"
                           hx-post="/extract" hx-trigger="change" hx-encoding="multipart/form-data"
                           hx-target="#extract-preview" hx-indicator="#extract-spinner"
                           class="mt-1 block w-full text-sm">
                </label>
                <label class="inline-flex items-center text-sm text-gray-700">
                    <input name="use_sample" type="checkbox" class="mr-2" {{if .Form.UseSample}}checked{{end}}>
                    Use the sample report instead
                </label>
                <button type="button" hx-get="/sample" hx-target="#extract-preview"
                        class="ml-4 text-sm bl-primary-text hover:underline">Show sample</button>
                <span id="extract-spinner" class="htmx-indicator text-sm text-gray-500">Extracting...</span>
                <div id="extract-preview"></div>
            </div>

            <button type="submit" class="inline-flex items-center px-4 py-2 text-sm font-medium rounded-md shadow-sm text-white bl-primary hover:opacity-90"
                    {{if eq .Remaining 0}}disabled{{end}}>
                Analyze report
            </button>
        </form>

        <div class="bg-white shadow rounded-lg">
            <div class="px-4 py-5 border-b border-gray-200 sm:px-6 flex justify-between items-center">
                <h3 class="text-lg leading-6 font-medium text-gray-900">Recent Reports</h3>
                <a href="/reports" class="text-sm bl-primary-text">View all ({{comma .ReportCount}})</a>
            </div>
            <ul class="divide-y divide-gray-200">
                {{range .Reports}}
                <li>
                    <a href="/reports/{{.ID}}" class="block hover:bg-gray-50 px-4 py-4">
                        <div class="flex items-center justify-between">
                            <p class="text-sm font-medium text-gray-900 truncate">{{.PatientName}} ({{.Age}}, {{.Gender}})</p>
                            <p class="text-xs text-gray-500" title="{{formatTime .CreatedAt}}">{{humanTime .CreatedAt}}</p>
                        </div>
                        <p class="mt-1 text-xs text-gray-500">{{typeLabel .AnalysisType}} · report of {{.ReportDate}}</p>
                    </a>
                </li>
                {{else}}
                <li class="px-4 py-4 text-sm text-gray-500">No reports yet</li>
                {{end}}
            </ul>
        </div>
    </div>
</div>
{{end}}`,

	"components/chat_sidebar": `{{define "chat_sidebar"}}
<aside class="bg-white shadow rounded-lg p-4 space-y-4">
    <div class="flex justify-between items-center">
        <h3 class="text-sm font-semibold text-gray-900">Chats</h3>
        <form action="/chats" method="POST">
            <button type="submit" class="text-xs bl-primary-text hover:underline">New chat</button>
        </form>
    </div>
    <ul class="space-y-1">
        {{$current := .Session.CurrentChatID}}
        {{range .Chats}}
        <li id="chat-{{.ID}}" class="flex items-center justify-between text-sm {{if eq .ID $current}}font-semibold{{end}}">
            <a href="/chats/{{.ID}}" class="truncate text-gray-700 hover:underline">{{.Title}}</a>
            <span class="flex space-x-2">
                {{if ne .ID $current}}
                <button hx-post="/chats/{{.ID}}/select" class="text-xs text-gray-500 hover:text-gray-700">Use</button>
                {{end}}
                <button hx-delete="/chats/{{.ID}}" hx-target="#chat-{{.ID}}" hx-swap="outerHTML"
                        hx-confirm="Delete this chat?" class="text-xs text-red-600 hover:text-red-800">Delete</button>
            </span>
        </li>
        {{else}}
        <li class="text-sm text-gray-500">No chats yet</li>
        {{end}}
    </ul>
    {{with .CurrentChat}}
    <div class="border-t pt-4 space-y-2 max-h-96 overflow-y-auto">
        {{range .Messages}}
        <div class="text-xs rounded p-2 {{if isAssistant .Role}}bg-blue-50{{else}}bg-gray-100{{end}}">
            {{truncate .Content 300}}
        </div>
        {{end}}
    </div>
    {{end}}
</aside>
{{end}}`,

	"error": `{{define "content"}}
<div class="flex items-center justify-center py-24">
    <div class="text-center">
        <h1 class="text-4xl font-bold text-gray-900 mb-4">Error</h1>
        <p class="text-gray-600 mb-8">{{.Message}}</p>
        <a href="/" class="bl-primary-text">Return to BloodLens</a>
    </div>
</div>
{{end}}`,

	"reports/list": `{{define "content"}}
<div class="px-4 py-6 sm:px-0">
    <h1 class="text-2xl font-semibold text-gray-900 mb-6">Reports</h1>
    <div class="bg-white shadow overflow-hidden sm:rounded-md">
        <ul class="divide-y divide-gray-200">
            {{range .Reports}}
            <li class="px-4 py-4 sm:px-6 hover:bg-gray-50">
                <div class="flex items-center justify-between">
                    <a href="/reports/{{.ID}}" class="text-sm font-medium bl-primary-text truncate">{{.PatientName}}</a>
                    <a href="/reports/{{.ID}}/download" class="text-xs text-gray-500 hover:text-gray-700">Download</a>
                </div>
                <div class="mt-2 flex items-center text-sm text-gray-500">
                    <span>{{typeLabel .AnalysisType}}</span>
                    <span class="mx-2">•</span>
                    <span>Report of {{.ReportDate}}</span>
                    <span class="mx-2">•</span>
                    <span title="{{formatTime .CreatedAt}}">Analyzed {{humanTime .CreatedAt}}</span>
                </div>
            </li>
            {{else}}
            <li class="px-4 py-8 text-center text-gray-500">
                No reports found. <a href="/" class="bl-primary-text">Analyze one</a>
            </li>
            {{end}}
        </ul>
    </div>

    {{if or .Pagination.HasPrev .Pagination.HasMore}}
    <div class="mt-4 flex justify-between">
        {{if .Pagination.HasPrev}}
        <a href="?offset={{.Pagination.PrevOffset}}&limit={{.Pagination.Limit}}"
           class="inline-flex items-center px-4 py-2 border border-gray-300 text-sm font-medium rounded-md text-gray-700 bg-white hover:bg-gray-50">
            Previous
        </a>
        {{else}}
        <span></span>
        {{end}}
        <span class="text-sm text-gray-500">
            Showing {{add .Pagination.Offset 1}} - {{add .Pagination.Offset (len .Reports)}} of {{.Pagination.Total}}
        </span>
        {{if .Pagination.HasMore}}
        <a href="?offset={{.Pagination.NextOffset}}&limit={{.Pagination.Limit}}"
           class="inline-flex items-center px-4 py-2 border border-gray-300 text-sm font-medium rounded-md text-gray-700 bg-white hover:bg-gray-50">
            Next
        </a>
        {{else}}
        <span></span>
        {{end}}
    </div>
    {{end}}
</div>
{{end}}`,

	"reports/detail": `{{define "content"}}
<div class="px-4 py-6 sm:px-0 space-y-6">
    <div class="flex justify-between items-center">
        <div>
            <h1 class="text-2xl font-semibold text-gray-900">{{.Report.PatientName}}</h1>
            <p class="mt-1 text-sm text-gray-500">
                {{.Report.Age}} years · {{.Report.Gender}} · report of {{.Report.ReportDate}} · {{typeLabel .Report.AnalysisType}}
            </p>
        </div>
        <a href="/reports/{{.Report.ID}}/download" download="{{.FileName}}"
           class="inline-flex items-center px-4 py-2 text-sm font-medium rounded-md shadow-sm text-white bl-primary hover:opacity-90">
            Download analysis
        </a>
    </div>
    <div class="bg-white shadow rounded-lg p-6">
        <pre class="whitespace-pre-wrap font-sans text-sm text-gray-800">{{.Report.Analysis}}</pre>
    </div>
    <a href="/" class="text-sm bl-primary-text">Analyze another report</a>
</div>
{{end}}`,

	"chats/detail": `{{define "content"}}
<div class="px-4 py-6 sm:px-0 space-y-6">
    <div class="flex justify-between items-center">
        <div>
            <h1 class="text-2xl font-semibold text-gray-900">{{.Chat.Title}}</h1>
            <p class="mt-1 text-sm text-gray-500">Started {{formatTime .Chat.CreatedAt}}{{if .Current}} · current chat{{end}}</p>
        </div>
        {{if not .Current}}
        <form action="/chats/{{.Chat.ID}}/select" method="POST">
            <button type="submit" class="text-sm bl-primary-text hover:underline">Make current</button>
        </form>
        {{end}}
    </div>
    <div class="space-y-4">
        {{range .Chat.Messages}}
        <div class="rounded-lg p-4 {{if isAssistant .Role}}bg-blue-50{{else}}bg-white shadow{{end}}">
            <p class="text-xs text-gray-500 mb-2">{{.Role}} · {{humanTime .CreatedAt}}</p>
            <pre class="whitespace-pre-wrap font-sans text-sm text-gray-800">{{.Content}}</pre>
        </div>
        {{else}}
        <p class="text-sm text-gray-500">No messages yet</p>
        {{end}}
    </div>
</div>
{{end}}`,
}

var fragments = map[string]string{
	"extract_preview": `<div class="rounded-md border border-gray-200 p-4 text-sm">
    {{if .FileName}}<p class="text-gray-700 font-medium">{{.FileName}} ({{bytes .Size}})</p>{{end}}
    {{if .Error}}
    <p class="text-red-700">{{.Error}}</p>
    {{else}}
    <p class="text-gray-500">{{.Result.Pages}} pages · matched terms: {{join .Result.MatchedTerms ", "}}</p>
    <pre class="mt-2 max-h-64 overflow-y-auto whitespace-pre-wrap text-xs text-gray-700">{{truncate .Result.Text 2000}}</pre>
    {{end}}
</div>`,

	"sample_report": `<div class="rounded-md border border-gray-200 p-4 text-sm">
    <p class="text-gray-700 font-medium">Sample report</p>
    <pre class="mt-2 max-h-64 overflow-y-auto whitespace-pre-wrap text-xs text-gray-700">{{.Text}}</pre>
</div>`,
}
