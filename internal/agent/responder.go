// Package agent defines the stage responders and streams their output.
package agent

import "github.com/jitinkakkar/dorthy-ai/internal/llm"

// Stage names a responder answers for. They mirror workflow.Stage values.
const (
	StageGatheringInfo = "gathering_info"
	StageProgramTeaser = "program_teaser"
	StageAskEmail      = "ask_email"
)

// Responder is a configured agent: instructions plus model settings.
type Responder struct {
	Name         string
	Stage        string
	Instructions string
	llm.Settings
	// UseDocumentSearch grounds the response in the program corpus.
	UseDocumentSearch bool
}

func NewGatheringInfo(settings llm.Settings) Responder {
	return Responder{
		Name:         "Gather More Information",
		Stage:        StageGatheringInfo,
		Instructions: GatheringInfoInstructions,
		Settings:     settings,
	}
}

func NewProgramTeaser(settings llm.Settings) Responder {
	return Responder{
		Name:              "Program Teaser",
		Stage:             StageProgramTeaser,
		Instructions:      ProgramTeaserInstructions,
		Settings:          settings,
		UseDocumentSearch: true,
	}
}

// NewAskEmail builds the responder for the detailed-report hand-off. No
// routing rule selects it yet.
func NewAskEmail(settings llm.Settings) Responder {
	return Responder{
		Name:         "Ask Email",
		Stage:        StageAskEmail,
		Instructions: AskEmailInstructions,
		Settings:     settings,
	}
}

// Catalog maps a stage name to the responder that answers it.
type Catalog map[string]Responder

func NewCatalog(responders ...Responder) Catalog {
	c := make(Catalog, len(responders))
	for _, r := range responders {
		c[r.Stage] = r
	}
	return c
}

// Lookup returns the responder registered for stage.
func (c Catalog) Lookup(stage string) (Responder, bool) {
	r, ok := c[stage]
	return r, ok
}
