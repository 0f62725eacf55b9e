package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/logging"
	"github.com/agentic-research/facetfs/internal/vnode"
)

var treeDepth int

func init() {
	treeCmd.Flags().IntVarP(&treeDepth, "depth", "L", 3, "Levels to descend below path")
}

var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "Print the virtual tree below path",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		inst, err := newInstance(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		defer func() { _ = inst.Close() }()

		path := "/"
		if len(args) > 0 {
			path = args[0]
		}
		return printTree(cmd.Context(), cmd.OutOrStdout(), inst, path, treeDepth)
	},
}

type stateTree interface {
	State(ctx context.Context, path string) (*content.NodeState, error)
}

// label renders a child entry without resolving it: its segment, the
// unescaped facet value when that differs, and any known count.
func label(c content.ChildEntry) string {
	l := c.Segment()
	if d := vnode.DecodeName(c.Name); d != c.Name {
		l += fmt.Sprintf(" %q", d)
	}
	return l + annotate(c.ID)
}

func annotate(id content.NodeID) string {
	switch v := id.(type) {
	case vnode.FacetSearchID:
		return fmt.Sprintf(" (%d)", v.Count)
	case vnode.ResultSetID:
		return fmt.Sprintf(" (%d)", v.Count)
	}
	return ""
}

// printTree writes path and up to depth levels below it, one node per line.
func printTree(ctx context.Context, w io.Writer, t stateTree, path string, depth int) error {
	st, err := t.State(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s [%s]\n", "/"+strings.Trim(path, "/"), st.PrimaryType)
	return printChildren(ctx, w, t, strings.Trim(path, "/"), st, 1, depth)
}

func printChildren(ctx context.Context, w io.Writer, t stateTree, path string, st *content.NodeState, level, depth int) error {
	indent := strings.Repeat("  ", level)
	for _, d := range st.Diagnostics {
		fmt.Fprintf(w, "%s! %v\n", indent, d)
	}
	if level > depth {
		return nil
	}
	for _, c := range st.Children {
		if err := ctx.Err(); err != nil {
			return err
		}
		childPath := c.Segment()
		if path != "" {
			childPath = path + "/" + childPath
		}
		child, err := t.State(ctx, childPath)
		if err != nil {
			fmt.Fprintf(w, "%s%s error: %v\n", indent, label(c), err)
			continue
		}
		fmt.Fprintf(w, "%s%s [%s]\n", indent, label(c), child.PrimaryType)
		if err := printChildren(ctx, w, t, childPath, child, level+1, depth); err != nil {
			return err
		}
	}
	return nil
}
