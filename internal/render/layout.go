package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/alvmarrod/peer-weaver/internal/execx"
)

// Layout turns a graph description into a displayable image
type Layout interface {
	Layout(ctx context.Context, doc string) ([]byte, error)
}

// GraphvizLayout pipes the document through a graphviz binary
type GraphvizLayout struct {
	runner  execx.Runner
	command string
	format  string
}

// NewGraphvizLayout creates a layout running "<command> -T<format>"
func NewGraphvizLayout(runner execx.Runner, command, format string) *GraphvizLayout {
	return &GraphvizLayout{runner: runner, command: command, format: format}
}

// Layout renders doc and returns the image bytes
func (g *GraphvizLayout) Layout(ctx context.Context, doc string) ([]byte, error) {
	out, err := g.runner.Output(ctx, strings.NewReader(doc), g.command, "-T"+g.format)
	if err != nil {
		return nil, fmt.Errorf("layout failed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("layout failed: %s produced no output", g.command)
	}
	return out, nil
}
