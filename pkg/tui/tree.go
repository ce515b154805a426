package tui

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ssh-control/pkg/manager"
)

// TreeOptions controls RenderTree.
type TreeOptions struct {
	Theme Theme

	// ShowPaths prefixes every entry with its dotted path.
	ShowPaths bool

	// MaxDepth stops descending below this many group levels. Zero means no
	// limit.
	MaxDepth int
}

// RenderTree writes the augmented tree rooted at root (empty for the whole
// config). Remote entries are marked and each host shows its resolved
// user@host:port. Warnings from stale remote data are returned.
func RenderTree(ctx context.Context, w io.Writer, cfg *manager.Config, root manager.GroupPath, src manager.RemoteSource, opts TreeOptions) ([]string, error) {
	r := &treeRenderer{ctx: ctx, w: w, cfg: cfg, src: src, opts: opts}
	r.render(root, "", 0)
	return r.warnings, r.err
}

type treeRenderer struct {
	ctx      context.Context
	w        io.Writer
	cfg      *manager.Config
	src      manager.RemoteSource
	opts     TreeOptions
	warnings []string
	err      error
}

func (r *treeRenderer) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func (r *treeRenderer) render(path manager.GroupPath, indent string, depth int) {
	if r.err != nil || r.ctx.Err() != nil {
		return
	}
	listing := manager.ListChildren(r.ctx, r.cfg, path, r.src)
	r.warnings = append(r.warnings, listing.Warnings...)
	t := r.opts.Theme

	for i, c := range listing.Children {
		last := i == len(listing.Children)-1
		branch, next := "├── ", "│   "
		if last {
			branch, next = "└── ", "    "
		}
		if len(path) == 0 {
			branch, next = "", ""
		}

		prefix := ""
		if r.opts.ShowPaths && c.Err == nil {
			if c.Kind == manager.ChildGroup {
				prefix = t.DimText("["+c.Path.String()+"] ")
			} else {
				prefix = t.DimText("["+c.Path.String()+"#"+strconv.Itoa(c.Index)+"] ")
			}
		}

		switch {
		case c.Err != nil:
			r.printf("%s%s%s\n", indent, branch, t.ErrorText(c.Host.Name+": "+c.Err.Error()))
		case c.Kind == manager.ChildGroup:
			name := t.GroupText(c.Group.Name)
			if c.Remote {
				name += " " + t.RemoteText("(remote)")
			}
			r.printf("%s%s%s%s\n", indent, branch, prefix, name)
			if r.opts.MaxDepth == 0 || depth+1 < r.opts.MaxDepth {
				r.render(c.Path, indent+next, depth+1)
			}
		default:
			r.printf("%s%s%s%s\n", indent, branch, prefix, r.hostLine(c))
		}
	}
}

func (r *treeRenderer) hostLine(c manager.Child) string {
	t := r.opts.Theme
	chain := manager.GroupChainAugmented(r.ctx, r.cfg, c.Path, r.src)
	s := manager.ResolveHostSettings(c.Host, chain)
	label := c.Host.Name
	if label == "" {
		label = c.Host.HostName
	}
	line := t.HostText(label) + " " + t.DimText(s.User+"@"+c.Host.HostName+":"+strconv.Itoa(s.Port))
	if c.Remote {
		line += " " + t.RemoteText("(remote)")
	}
	return line
}

// HostLabel renders "name (user@host:port)" for plain listings.
func HostLabel(h manager.Host, s manager.ResolvedSettings) string {
	var b strings.Builder
	if h.Name != "" && h.Name != h.HostName {
		b.WriteString(h.Name)
		b.WriteString(" (")
	}
	b.WriteString(s.User + "@" + h.HostName + ":" + strconv.Itoa(s.Port))
	if h.Name != "" && h.Name != h.HostName {
		b.WriteString(")")
	}
	return b.String()
}
