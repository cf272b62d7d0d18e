package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"sigs.k8s.io/yaml"

	"github.com/wippyai/subscript/dispatch"
	"github.com/wippyai/subscript/metadata"
	"github.com/wippyai/subscript/resolver"
)

// printer writes command output, styled when w is a terminal.
type printer struct {
	w     io.Writer
	style bool
}

func newPrinter(f *os.File) *printer {
	return &printer{w: f, style: term.IsTerminal(int(f.Fd()))}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.style {
		return text
	}
	return s.Render(text)
}

func (p *printer) yaml(v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.w.Write(b)
	return err
}

func (p *printer) modules(md *metadata.Metadata) {
	fmt.Fprintf(p.w, "%s metadata v%d\n", p.render(titleStyle, "Runtime"), md.Version)
	for _, m := range md.Modules() {
		fmt.Fprintf(p.w, "\n%s (%d)\n", p.render(funcStyle, m.Name), m.Index)
		for _, c := range m.Calls {
			fmt.Fprintf(p.w, "  call    %s\n", p.callSignature(c))
		}
		for _, s := range m.Storage {
			fmt.Fprintf(p.w, "  storage %s\n", p.storageSignature(s))
		}
		for _, c := range m.Constants {
			fmt.Fprintf(p.w, "  const   %s: %s\n", c.Name, p.render(typeStyle, c.Type))
		}
		for _, e := range m.Events {
			fmt.Fprintf(p.w, "  event   %s(%s)\n", e.Name, p.argTypes(e.Args))
		}
	}
}

func (p *printer) callSignature(c *metadata.Call) string {
	params := make([]string, len(c.Args))
	for i, a := range c.Args {
		params[i] = a.Name + ": " + p.render(typeStyle, a.Type)
	}
	return p.render(funcStyle, c.Name) + "(" + strings.Join(params, ", ") + ")"
}

func (p *printer) storageSignature(s *metadata.StorageEntry) string {
	sig := s.Name
	if s.IsMap() {
		sig += "[" + p.render(typeStyle, strings.Join(s.Keys, ", ")) + "]"
	}
	return sig + ": " + p.render(typeStyle, s.Value) + " " + p.render(helpStyle, s.Modifier.String())
}

func (p *printer) argTypes(args []metadata.Arg) string {
	types := make([]string, len(args))
	for i, a := range args {
		types[i] = p.render(typeStyle, a.Type)
	}
	return strings.Join(types, ", ")
}

func (p *printer) entry(e resolver.StorageEntry) error {
	fmt.Fprintf(p.w, "%s 0x%x\n", p.render(helpStyle, "key"), e.Key)
	if e.Absent {
		fmt.Fprintln(p.w, p.render(helpStyle, "(absent)"))
		if e.Value.IsUnit() {
			return nil
		}
	}
	return p.yaml(e.Value)
}

func (p *printer) call(call *resolver.CallPayload, xt *dispatch.Extrinsic) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(funcStyle, call.Meta().FullName()), call.Hex())
	fmt.Fprintf(p.w, "%s 0x%x\n", p.render(helpStyle, "extrinsic"), xt.Bytes)
	fmt.Fprintf(p.w, "%s 0x%x\n", p.render(helpStyle, "hash"), xt.Hash)
}

func (p *printer) result(res *dispatch.SubmissionResult) error {
	style := resultStyle
	if res.Outcome != dispatch.OutcomeIncluded {
		style = errorStyle
	}
	fmt.Fprintln(p.w, p.render(style, res.String()))
	if de := res.DispatchError(); de != nil {
		fmt.Fprintln(p.w, p.render(errorStyle, "dispatch error: "+de.Error()))
	}
	for _, e := range res.Events {
		fmt.Fprintf(p.w, "  %s\n", e)
	}
	return nil
}
