// Command sqlkvctl is a small operator tool for poking at the storage
// adapter against an in-memory store: dumping a group's rows, rendering
// the group/table/index hierarchy as a graph, and exercising a
// traversal with periodic commit. It never talks to a real KV cluster;
// the transactional store itself is out of this module's scope.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/emicklei/dot"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flatkv/sqladapter/internal/groupkv"
	"github.com/flatkv/sqladapter/internal/indexkv"
	"github.com/flatkv/sqladapter/internal/kvtest"
	"github.com/flatkv/sqladapter/internal/rowstore"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/session"
	"github.com/flatkv/sqladapter/internal/traverse"
	"github.com/flatkv/sqladapter/internal/tuple"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sqlkvctl",
		Short: "Inspect and exercise the ordered-KV storage adapter against a demo dataset",
	}
	root.AddCommand(newDumpCmd(), newGraphCmd(), newTraverseCmd())
	return root
}

// demoGroup seeds a tiny synthetic group with n rows, for commands that
// need something to operate on without a real cluster attached.
func demoGroup(n int) (*kvtest.Store, schema.Group) {
	store := kvtest.New()
	group := schema.Group{Desc: schema.StorageDescription{Path: []string{"data", "demo_group"}, Prefix: []byte{0xd0}}}
	ctx := context.Background()
	sess, err := session.New(ctx, store, nil)
	if err != nil {
		panic(err)
	}
	for i := 0; i < n; i++ {
		hk := tuple.New(tuple.Int(int64(i / 10)), tuple.Int(int64(i)))
		row := rowstore.Row{Key: hk, Value: schema.RowData(fmt.Sprintf("row-%d", i))}
		if err := rowstore.Store(ctx, sess, group.Desc, row, nil); err != nil {
			panic(err)
		}
	}
	if err := sess.Commit(ctx); err != nil {
		panic(err)
	}
	return store, group
}

func newDumpCmd() *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump a demo group's rows as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, group := demoGroup(rows)
			ctx := context.Background()
			sess, err := session.New(ctx, store, nil)
			if err != nil {
				return err
			}
			it, err := groupkv.Iter(ctx, sess, group)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"hkey", "value"})
			for {
				row, ok, err := it.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				t.AppendRow(table.Row{formatKey(row.HKey.Key), string(row.Value)})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 20, "number of synthetic rows to seed and dump")
	return cmd
}

func newTraverseCmd() *cobra.Command {
	var rows int
	var scanTimeLimit time.Duration
	var sleepTime time.Duration
	cmd := &cobra.Command{
		Use:   "traverse",
		Short: "Run a periodic-commit traversal over a demo index and report visit counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, group := demoGroup(rows)
			index := schema.Index{
				Name: "demo_pk",
				Desc: schema.StorageDescription{Path: []string{"data", "demo_pk"}, Prefix: []byte{0xd1}},
			}
			ctx := context.Background()
			if err := seedIndexFromGroup(ctx, store, group, index); err != nil {
				return err
			}

			var visited int
			log := zap.NewNop()
			visitor := func(row indexkv.Row) error {
				visited++
				return nil
			}
			start := time.Now()
			if err := traverse.Run(ctx, store, log, index, visitor, scanTimeLimit, sleepTime); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "visited %d rows in %s\n", visited, time.Since(start))
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 500, "number of synthetic rows to seed")
	cmd.Flags().DurationVar(&scanTimeLimit, "scan-time-limit", 5*time.Millisecond, "wall-clock budget per transaction before commit-and-reset")
	cmd.Flags().DurationVar(&sleepTime, "sleep", 0, "pause between transactions")
	return cmd
}

func seedIndexFromGroup(ctx context.Context, store *kvtest.Store, group schema.Group, index schema.Index) error {
	sess, err := session.New(ctx, store, nil)
	if err != nil {
		return err
	}
	it, err := groupkv.Iter(ctx, sess, group)
	if err != nil {
		return err
	}
	for {
		row, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		ir := indexkv.Row{Key: row.HKey.Key, HKey: row.HKey}
		if err := indexkv.Write(ctx, sess, index, ir); err != nil {
			return err
		}
	}
	return sess.Commit(ctx)
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the demo group/table/index hierarchy as Graphviz dot",
		RunE: func(cmd *cobra.Command, args []string) error {
			g := dot.NewGraph(dot.Directed)
			g.Attr("rankdir", "LR")

			group := g.Node("group: demo_group")
			table1 := g.Node("table: parent")
			table2 := g.Node("table: child")
			index1 := g.Node("index: parent_pk (unique)")
			index2 := g.Node("index: child_by_parent (group index)")

			g.Edge(group, table1)
			g.Edge(group, table2)
			g.Edge(table1, index1)
			g.Edge(group, index2).Attr("label", "spans both tables")

			fmt.Fprintln(cmd.OutOrStdout(), g.String())
			return nil
		},
	}
	return cmd
}

func formatKey(k tuple.Key) string {
	s := "("
	for i, seg := range k.Segments {
		if i > 0 {
			s += ", "
		}
		switch seg.Kind {
		case tuple.KindInt:
			s += fmt.Sprintf("%d", seg.Int)
		case tuple.KindString:
			s += seg.Str
		case tuple.KindNull:
			s += "NULL"
		default:
			s += fmt.Sprintf("%x", seg.Bytes)
		}
	}
	return s + ")"
}
