package k8s

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// defaultJobTemplate is used when no template file is configured
const defaultJobTemplate = `apiVersion: batch/v1
kind: Job
metadata:
  name: {{ .Name }}
  namespace: {{ .Namespace }}
  labels:
{{- range $k, $v := .Labels }}
    {{ quote $k }}: {{ quote $v }}
{{- end }}
spec:
  backoffLimit: {{ .BackoffLimit }}
  ttlSecondsAfterFinished: {{ .TTLSecondsAfterFinished }}
{{- if .ActiveDeadlineSeconds }}
  activeDeadlineSeconds: {{ .ActiveDeadlineSeconds }}
{{- end }}
  template:
    metadata:
      labels:
{{- range $k, $v := .Labels }}
        {{ quote $k }}: {{ quote $v }}
{{- end }}
    spec:
      restartPolicy: Never
      containers:
        - name: {{ .ContainerName }}
          image: {{ quote .Image }}
          command:
{{- range .Command }}
            - {{ quote . }}
{{- end }}
{{- if .Env }}
          env:
{{- range $k, $v := .Env }}
            - name: {{ quote $k }}
              value: {{ quote $v }}
{{- end }}
{{- end }}
`

// TemplateRenderer renders Job manifests
type TemplateRenderer struct {
	templatePath string
}

// NewTemplateRenderer creates a renderer. An empty path selects the built-in template.
func NewTemplateRenderer(templatePath string) *TemplateRenderer {
	return &TemplateRenderer{
		templatePath: templatePath,
	}
}

// RenderContext values available to Job templates
type RenderContext struct {
	Name          string            `json:"name"`
	Namespace     string            `json:"namespace"`
	Image         string            `json:"image"`
	ContainerName string            `json:"containerName"`
	Command       []string          `json:"command"`
	Env           map[string]string `json:"env"`
	Labels        map[string]string `json:"labels"`

	BackoffLimit            int32 `json:"backoffLimit"`
	TTLSecondsAfterFinished int32 `json:"ttlSecondsAfterFinished"`
	ActiveDeadlineSeconds   int64 `json:"activeDeadlineSeconds"` // 0 = no deadline
}

var templateFuncs = template.FuncMap{
	// quote renders a string as a JSON string, which is valid YAML
	"quote": func(s string) string {
		b, _ := json.Marshal(s)
		return string(b)
	},
}

// Render renders the template
func (r *TemplateRenderer) Render(ctx *RenderContext) (string, error) {
	name, content := "job", defaultJobTemplate
	if r.templatePath != "" {
		data, err := os.ReadFile(r.templatePath)
		if err != nil {
			return "", fmt.Errorf("failed to read template file: %w", err)
		}
		name, content = r.templatePath, string(data)
	}

	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// parseJob decodes a rendered manifest. Only a single Job document is accepted.
func parseJob(manifest string) (*batchv1.Job, error) {
	var docs []string
	for _, doc := range strings.Split(manifest, "\n---") {
		if strings.TrimSpace(doc) != "" {
			docs = append(docs, doc)
		}
	}
	if len(docs) != 1 {
		return nil, fmt.Errorf("expected one YAML document, got %d", len(docs))
	}

	var meta metav1.TypeMeta
	if err := yaml.Unmarshal([]byte(docs[0]), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if meta.Kind != "Job" {
		return nil, fmt.Errorf("unsupported resource kind: %s", meta.Kind)
	}

	var job batchv1.Job
	if err := yaml.Unmarshal([]byte(docs[0]), &job); err != nil {
		return nil, fmt.Errorf("failed to parse Job: %w", err)
	}
	return &job, nil
}
