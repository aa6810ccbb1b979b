package report

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"finsight/internal/llm"
	"finsight/internal/logging"
)

//go:embed templates.yaml
var embeddedTemplates []byte

// templateOverridePath is checked at first use; a file there replaces the
// embedded pack wholesale.
const templateOverridePath = ".finsight/templates.yaml"

type promptTemplate struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type templatePack map[string]promptTemplate

var (
	packOnce sync.Once
	pack     templatePack
	packErr  error
)

func loadPack() (templatePack, error) {
	packOnce.Do(func() {
		data := embeddedTemplates
		if override, err := os.ReadFile(templateOverridePath); err == nil {
			logging.Report("using prompt template override from %s", templateOverridePath)
			data = override
		}
		pack = make(templatePack)
		packErr = yaml.Unmarshal(data, &pack)
	})
	return pack, packErr
}

// BuildPrompt formats the system and user prompts for a request. Pure apart
// from the one-time template load.
func BuildPrompt(req *GenerationRequest) (llm.Prompt, error) {
	tmpls, err := loadPack()
	if err != nil {
		return llm.Prompt{}, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	pt, ok := tmpls[string(req.Type)]
	if !ok {
		return llm.Prompt{}, fmt.Errorf("no prompt template for report type %q", req.Type)
	}

	t, err := template.New(string(req.Type)).Parse(pt.User)
	if err != nil {
		return llm.Prompt{}, fmt.Errorf("invalid user template for %q: %w", req.Type, err)
	}

	var b strings.Builder
	if err := t.Execute(&b, req); err != nil {
		return llm.Prompt{}, fmt.Errorf("failed to render prompt for %q: %w", req.Type, err)
	}

	return llm.Prompt{
		System: strings.TrimSpace(pt.System),
		User:   strings.TrimSpace(b.String()),
	}, nil
}
