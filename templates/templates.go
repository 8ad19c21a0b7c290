// Package templates embeds the HTML pages. Each file is registered under its
// file name, and layout.html provides the shared "header" and "footer" blocks.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/techzone/intervention-manager/models"
)

//go:embed *.html
var files embed.FS

const dateLayout = "02/01/2006 15:04"

var statusLabels = map[string]string{
	models.StatusPending:    "Pending",
	models.StatusInProgress: "In progress",
	models.StatusDone:       "Done",
	models.StatusCancelled:  "Cancelled",
}

var priorityLabels = map[string]string{
	models.PriorityLow:    "Low",
	models.PriorityNormal: "Normal",
	models.PriorityHigh:   "High",
	models.PriorityUrgent: "Urgent",
}

// Load parses every page with the helper functions installed
func Load() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(Funcs()).ParseFS(files, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}

// Funcs returns the helpers available to every page
func Funcs() template.FuncMap {
	return template.FuncMap{
		"date":          formatDate,
		"str":           deref,
		"coord":         formatCoord,
		"statusLabel":   func(s string) string { return label(statusLabels, s) },
		"priorityLabel": func(p string) string { return label(priorityLabels, p) },
		"isOpen":        func(s string) bool { return !models.IsTerminalStatus(s) },
		"isAssigned":    isAssigned,
		"statuses":      func() []string { return models.Statuses },
		"priorities":    func() []string { return models.Priorities },
	}
}

func formatDate(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Local().Format(dateLayout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Local().Format(dateLayout)
	default:
		return ""
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatCoord(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.6f", *f)
}

func label(labels map[string]string, key string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	return key
}

// isAssigned reports whether the technician id of an intervention is id
func isAssigned(technicianID *uint, id uint) bool {
	return technicianID != nil && *technicianID == id
}
