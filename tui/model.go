// Package tui is the interactive chat front end: it renders the
// conversation, the latest answer and its source cards, and feeds questions
// to the retrieval engine.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alusci/ask-bi/docs"
	"github.com/alusci/ask-bi/qa"
	"github.com/alusci/ask-bi/store"
)

// Assistant is the TUI-facing subset of the retrieval engine.
type Assistant interface {
	Answer(ctx context.Context, query string, index store.Index, history []qa.Turn, k int) qa.Result
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	chatFrameStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type answerMsg struct {
	query  string
	result qa.Result
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	assistant Assistant
	index     store.Index
	conv      *qa.Conversation
	k         int

	input    textinput.Model
	viewport viewport.Model
	status   string
	busy     bool
	ready    bool
}

// New builds the chat model. The conversation starts empty; the index may be
// nil, in which case every answer reports the uninitialized knowledge base.
func New(assistant Assistant, index store.Index, k int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the sales data"
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		assistant: assistant,
		index:     index,
		conv:      qa.NewConversation(),
		k:         k,
		input:     ti,
		viewport:  viewport.New(0, 0),
		status:    "Ready. Type a question and press Enter.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, frameHeight := chatFrameStyle.GetFrameSize()
		height := msg.Height - frameHeight - 5
		if height < 3 {
			height = 3
		}
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = height
		m.viewport.SetContent(m.renderConversation())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Finding relevant information and generating response..."
			m.input.SetValue("")
			history := m.conv.Turns()
			return m, func() tea.Msg {
				return answerMsg{
					query:  query,
					result: m.assistant.Answer(context.Background(), query, m.index, history, m.k),
				}
			}
		case "ctrl+l":
			m.conv.Clear()
			m.status = "Conversation cleared."
			m.viewport.SetContent(m.renderConversation())
			return m, nil
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}

	case answerMsg:
		m.busy = false
		m.conv.Append(qa.Turn{Role: qa.RoleUser, Content: msg.query})
		m.conv.Append(qa.Turn{
			Role:     qa.RoleAssistant,
			Content:  msg.result.Answer,
			Metadata: msg.result.DocumentMetadata,
		})
		if msg.result.Err != "" {
			m.status = "Error: " + msg.result.Err
		} else {
			m.status = fmt.Sprintf("Answered using %d sources.", msg.result.RetrievedCount)
		}
		m.viewport.SetContent(m.renderConversation())
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Intelligent BI Assistant")
	chat := chatFrameStyle.Render(m.viewport.View())
	return header + "\n" + chat + "\n" + m.input.View() + "\n" + statusStyle.Render(m.status)
}

func (m Model) renderConversation() string {
	turns := m.conv.Turns()
	if len(turns) == 0 {
		return "Ask about sales trends, regions, products, or customer demographics."
	}

	var sb strings.Builder
	for _, turn := range turns {
		if turn.Role == qa.RoleUser {
			sb.WriteString(questionStyle.Render("Question: ") + turn.Content + "\n\n")
			continue
		}
		sb.WriteString(answerStyle.Render("Answer: ") + turn.Content + "\n")
		if cards := formatSources(turn.Metadata); cards != "" {
			sb.WriteString(sourceStyle.Render(cards))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatSources renders one card line per grounding document.
func formatSources(metadata []docs.Metadata) string {
	if len(metadata) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Sources:\n")
	for i, meta := range metadata {
		sb.WriteString(fmt.Sprintf("  %d. %s", i+1, sourceLabel(meta)))
		if raw := meta.RawData; raw != nil {
			sb.WriteString(fmt.Sprintf(" | Total $%.2f | Avg $%.2f | Sat %.2f/5 | %d records",
				raw.TotalSales, raw.AverageSale, raw.AverageSatisfaction, raw.TotalRecords))
		}
		if meta.PlotPath != "" {
			sb.WriteString(" | chart: " + meta.PlotPath)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func sourceLabel(meta docs.Metadata) string {
	switch meta.Type {
	case docs.TypeTimePeriod:
		return "Time period " + meta.Period
	case docs.TypeProduct:
		return meta.Product
	case docs.TypeRegion:
		return meta.Region + " Region"
	case docs.TypeDemographic:
		return "Age group " + meta.AgeGroup
	case docs.TypeOverall:
		return "Overall summary"
	}
	return "Source"
}
