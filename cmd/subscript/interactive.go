package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"sigs.k8s.io/yaml"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/dispatch"
	"github.com/wippyai/subscript/metadata"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const pageSize = 20

type interactiveModel struct {
	err      error
	sess     *dispatch.Session
	endpoint string
	result   string
	items    []itemInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type itemInfo struct {
	ref    metadata.ItemRef
	label  string
	params []paramInfo
}

type paramInfo struct {
	name    string
	typeStr string
}

type modelState int

const (
	stateSelectItem modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(sess *dispatch.Session, endpoint string) *interactiveModel {
	return &interactiveModel{
		sess:     sess,
		endpoint: endpoint,
		items:    browseItems(sess.Metadata()),
		state:    stateSelectItem,
	}
}

// browseItems lists every call, storage entry and constant of the runtime.
func browseItems(md *metadata.Metadata) []itemInfo {
	var items []itemInfo
	for _, m := range md.Modules() {
		for _, c := range m.Calls {
			it := itemInfo{
				ref:   metadata.ItemRef{Kind: metadata.ItemExtrinsic, Module: m.Name, Name: c.Name},
				label: "call    " + c.FullName(),
			}
			for _, a := range c.Args {
				it.params = append(it.params, paramInfo{name: a.Name, typeStr: a.Type})
			}
			items = append(items, it)
		}
		for _, s := range m.Storage {
			it := itemInfo{
				ref:   metadata.ItemRef{Kind: metadata.ItemStorage, Module: m.Name, Name: s.Name},
				label: "storage " + m.Name + "." + s.Name,
			}
			for i, k := range s.Keys {
				it.params = append(it.params, paramInfo{name: fmt.Sprintf("key%d", i), typeStr: k})
			}
			items = append(items, it)
		}
		for _, c := range m.Constants {
			items = append(items, itemInfo{
				ref:   metadata.ItemRef{Kind: metadata.ItemConstant, Module: m.Name, Name: c.Name},
				label: "const   " + m.Name + "." + c.Name,
			})
		}
	}
	return items
}

type resultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectItem && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectItem && m.selected < len(m.items)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectItem:
				if len(m.items) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.execute
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.execute

			case stateShowResult:
				m.state = stateSelectItem
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectItem
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectItem
				m.result = ""
				m.err = nil
			}
		}

	case resultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	it := m.items[m.selected]
	m.inputs = make([]textinput.Model, len(it.params))
	for i, p := range it.params {
		ti := textinput.New()
		ti.Placeholder = p.typeStr
		ti.Prompt = p.name + ": "
		ti.Width = 60
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// execute runs the selected item with the entered arguments.
func (m *interactiveModel) execute() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	it := m.items[m.selected]
	args := make([]codec.Value, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = parseInput(input.Value())
	}

	switch it.ref.Kind {
	case metadata.ItemExtrinsic:
		call, err := m.sess.BuildCall(it.ref.Module, it.ref.Name, args...)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{result: call.Hex()}

	case metadata.ItemStorage:
		e, err := m.sess.Storage(ctx, it.ref.Module, it.ref.Name, args...)
		if err != nil {
			return resultMsg{err: err}
		}
		return renderValue(e.Value, e.Absent)

	default:
		v, err := m.sess.Metadata().ConstantValue(it.ref.Module, it.ref.Name)
		if err != nil {
			return resultMsg{err: err}
		}
		return renderValue(v, false)
	}
}

// parseInput reads a JSON value, falling back to the raw text so names
// and hex strings need no quoting.
func parseInput(s string) codec.Value {
	if v, err := codec.FromJSON([]byte(s)); err == nil {
		return v
	}
	return codec.Text(strings.TrimSpace(s))
}

func renderValue(v codec.Value, absent bool) tea.Msg {
	b, err := yaml.Marshal(v)
	if err != nil {
		return resultMsg{err: err}
	}
	out := string(b)
	if absent {
		out = "(absent)\n" + out
	}
	return resultMsg{result: out}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Subscript"))
	b.WriteString(" ")
	b.WriteString(m.endpoint)
	b.WriteString(" ")
	b.WriteString(helpStyle.Render(m.sess.RuntimeVersion().String()))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectItem:
		b.WriteString("Select an item:\n\n")
		start := max(0, m.selected-pageSize/2)
		end := min(len(m.items), start+pageSize)
		for i := start; i < end; i++ {
			line := m.items[i].label
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • q quit"))

	case stateInputArgs:
		it := m.items[m.selected]
		b.WriteString(fmt.Sprintf("%s\n\n", funcStyle.Render(it.label)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(it.params[i].typeStr))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))

	case stateShowResult:
		it := m.items[m.selected]
		b.WriteString(fmt.Sprintf("%s\n\n", funcStyle.Render(it.label)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(sess *dispatch.Session, endpoint string) error {
	p := tea.NewProgram(newInteractiveModel(sess, endpoint), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
