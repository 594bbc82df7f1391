// Package snippet writes the text a user pastes into a report document or
// a shell to reproduce a dispatch: an RST directive block or a command
// line.
package snippet

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"

	"github.com/banshee-data/trackreport/internal/params"
)

// Params describes a dispatch as it was run.
type Params struct {
	Label   string
	Caption string

	Module       string
	Tracker      string
	Renderer     string
	Transformers []string
	Tracks       params.Set
	Slices       params.Set

	TrackerOptions   params.Options
	RenderOptions    params.Options
	TransformOptions params.Options
	DisplayOptions   params.Options

	// Dir is the working directory the notebook snippet changes to.
	Dir string
}

const (
	startMarker = "..Template start\n\n"
	endMarker   = "\n..Template ends\n"
)

var rstTemplate = template.Must(template.New("rst").Parse(`.. _{{.Label}}:

.. report:: {{.Identity}}
   :render: {{.Renderer}}
{{- range .Fields}}
   {{.}}
{{- end}}

   {{.Caption}}
`))

// Frame wraps the output of write in the template markers.
func Frame(w io.Writer, write func(io.Writer) error) error {
	if _, err := io.WriteString(w, startMarker); err != nil {
		return err
	}
	if err := write(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, endMarker)
	return err
}

// WriteRST writes a report directive. Fields follow in tracker, render,
// transform, display order after the composed :transform: field.
func WriteRST(w io.Writer, p Params) error {
	var fields []string
	if len(p.Transformers) > 0 {
		fields = append(fields, ":transform: "+strings.Join(p.Transformers, ","))
	}
	if !p.Tracks.IsAll() {
		fields = append(fields, ":tracks: "+p.Tracks.String())
	}
	if !p.Slices.IsAll() {
		fields = append(fields, ":slices: "+p.Slices.String())
	}
	for _, opts := range []params.Options{p.TrackerOptions, p.RenderOptions, p.TransformOptions, p.DisplayOptions} {
		for _, o := range opts.List() {
			if o.HasValue {
				fields = append(fields, fmt.Sprintf(":%s: %s", o.Key, o.Value))
			} else {
				fields = append(fields, fmt.Sprintf(":%s:", o.Key))
			}
		}
	}
	renderer := p.Renderer
	if renderer == "" {
		renderer = "none"
	}
	return rstTemplate.Execute(w, struct {
		Label, Identity, Renderer, Caption string
		Fields                             []string
	}{
		Label:    p.Label,
		Identity: identity(p.Module, p.Tracker),
		Renderer: renderer,
		Caption:  p.Caption,
		Fields:   fields,
	})
}

// WriteNotebook writes a shell snippet re-running the dispatch as a
// data-only run. Display options are not repeated.
func WriteNotebook(w io.Writer, p Params) error {
	args := []string{"trackreport", "-r", "none", "-t", shellQuote(p.Tracker)}
	if !p.Tracks.IsAll() {
		args = append(args, "-a", shellQuote(p.Tracks.String()))
	}
	if !p.Slices.IsAll() {
		args = append(args, "-s", shellQuote(p.Slices.String()))
	}
	for _, opts := range []params.Options{p.TrackerOptions, p.RenderOptions, p.TransformOptions} {
		for _, o := range opts.List() {
			args = append(args, "-o", shellQuote(o.String()))
		}
	}
	for _, t := range p.Transformers {
		args = append(args, "-m", shellQuote(t))
	}
	dir := p.Dir
	if dir == "" {
		dir = "."
	}
	_, err := fmt.Fprintf(w, "cd %s\n%s\n", shellQuote(dir), strings.Join(args, " "))
	return err
}

func identity(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

func shellQuote(s string) string {
	if s != "" && shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
