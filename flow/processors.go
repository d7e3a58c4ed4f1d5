package flow

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentkit/core"
	internalutil "github.com/hupe1980/agentkit/internal/util"
	"github.com/hupe1980/agentkit/model"
)

// InstructionsProcessor resolves the agent's system instructions and renders
// them against the merged session state so templates can reference scoped
// keys, e.g. {{index . "user:name"}}.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets the rendered system instructions on the request.
func (p *InstructionsProcessor) ProcessRequest(ictx *core.InvocationContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(ictx)
	if err != nil {
		return fmt.Errorf("failed to resolve instructions: %w", err)
	}

	ictx.Logger.Debug("agent.instruction.resolved", "agent", agent.GetName(), "length", len(instructions))

	if ictx.Session != nil {
		rendered, err := internalutil.RenderTemplate(instructions, ictx.Session.StateSnapshot())
		if err != nil {
			return fmt.Errorf("failed to render instructions template: %w", err)
		}
		req.Instructions = rendered
		return nil
	}

	req.Instructions = instructions
	return nil
}

// ContentsProcessor assembles the conversation history for the request.
// History is filtered by branch: an event is visible when it has no branch or
// its branch is an ancestor of (a prefix of) the current branch, so parallel
// siblings never see each other's intermediate events.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest adds branch-visible conversation history to the request.
func (p *ContentsProcessor) ProcessRequest(ictx *core.InvocationContext, req *model.Request, agent FlowAgent) error {
	if ictx.Session == nil {
		req.Contents = []core.Content{{
			Role:  ictx.UserContent.Role,
			Parts: ictx.UserContent.Parts,
		}}
		return nil
	}

	events := ictx.Session.GetConversationHistory()

	visible := events[:0:0]
	for _, ev := range events {
		if branchVisible(ev.Branch, ictx.Branch) {
			visible = append(visible, ev)
		}
	}

	if max := agent.MaxHistoryMessages(); max > 0 && len(visible) > max {
		visible = visible[len(visible)-max:]
	}

	contents := make([]core.Content, 0, len(visible))
	for _, ev := range visible {
		if ev.Content != nil && len(ev.Content.Parts) > 0 {
			contents = append(contents, *ev.Content)
		}
	}

	req.Contents = contents
	return nil
}

// branchVisible reports whether an event authored on eventBranch belongs to
// the history of an agent running on currentBranch.
func branchVisible(eventBranch *string, currentBranch string) bool {
	if eventBranch == nil || *eventBranch == "" {
		return true
	}
	if currentBranch == "" {
		return false
	}
	return currentBranch == *eventBranch || strings.HasPrefix(currentBranch, *eventBranch+".")
}
