package table

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/graphps/internal/graph"
	"github.com/dreamware/graphps/internal/storage"
)

const fixture = "37\tfeat-37\t96;1.0\t59;2.0\t97;0.5\n" +
	"96\tfeat-96\t37;1\t59;1\t97;1\n" +
	"59\tfeat-59\t37;3\t96\t97;0.25\n" +
	"97\tfeat-97\t37;1\t96;2\t59;4\n"

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestTable(t *testing.T, rank, servers int) *GraphTable {
	t.Helper()
	tbl, err := New(0, Options{ShardNum: 127, Seed: 7})
	require.NoError(t, err)
	require.NoError(t, tbl.SetShard(rank, servers))
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func decodeIDs(t *testing.T, buf []byte) []uint64 {
	t.Helper()
	nodes, err := graph.DecodeNodes(buf)
	require.NoError(t, err)
	ids := make([]uint64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	return ids
}

// TestNew tests option validation
func TestNew(t *testing.T) {
	_, err := New(1, Options{})
	assert.Error(t, err)

	tbl, err := New(1, Options{ShardNum: 4})
	require.NoError(t, err)
	defer tbl.Close()
	assert.Equal(t, uint32(1), tbl.ID())
	assert.Equal(t, DefaultPoolSize, len(tbl.pool.workers))

	_, err = tbl.PullGraphList(0, 1)
	assert.ErrorIs(t, err, ErrUnassigned)
	_, err = tbl.RandomSample(context.Background(), []uint64{1}, 1)
	assert.ErrorIs(t, err, ErrUnassigned)
	assert.ErrorIs(t, tbl.AddNode(1, nil), ErrUnassigned)

	assert.Error(t, tbl.SetShard(2, 2))
	assert.Error(t, tbl.SetShard(0, 0))
}

// TestSetShard tests shard range assignment
func TestSetShard(t *testing.T) {
	tbl := newTestTable(t, 0, 2)
	start, end, servers := tbl.ShardRange()
	assert.Equal(t, 0, start)
	assert.Equal(t, 64, end)
	assert.Equal(t, 2, servers)
	assert.Len(t, tbl.ShardInfos(), 64)

	tbl = newTestTable(t, 1, 2)
	start, end, _ = tbl.ShardRange()
	assert.Equal(t, 64, start)
	assert.Equal(t, 127, end)
	assert.Len(t, tbl.ShardInfos(), 63)
}

// TestLoadPartitions tests that each server keeps only the ids it owns
func TestLoadPartitions(t *testing.T) {
	path := writeFixture(t, "nodes.txt", fixture)
	ctx := context.Background()

	s0 := newTestTable(t, 0, 2)
	s1 := newTestTable(t, 1, 2)
	require.NoError(t, s0.Load(ctx, path, ""))
	require.NoError(t, s1.Load(ctx, path, ""))

	nodes, edges := s0.Stat()
	assert.Equal(t, int64(2), nodes)
	assert.Equal(t, int64(6), edges)
	nodes, edges = s1.Stat()
	assert.Equal(t, int64(2), nodes)
	assert.Equal(t, int64(6), edges)

	n, err := s0.FindNode(37)
	require.NoError(t, err)
	assert.Equal(t, []byte("feat-37"), n.Feature())
	assert.Equal(t, []graph.Edge{{ID: 96, Weight: 1}, {ID: 59, Weight: 2}, {ID: 97, Weight: 0.5}}, n.Edges())

	n, err = s0.FindNode(59)
	require.NoError(t, err)
	assert.Equal(t, graph.Edge{ID: 96, Weight: 1}, n.Edges()[1])

	_, err = s0.FindNode(96)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = s1.FindNode(96)
	assert.NoError(t, err)
}

// TestPullGraphList tests range listing across local shards
func TestPullGraphList(t *testing.T) {
	path := writeFixture(t, "nodes.txt", fixture)
	s0 := newTestTable(t, 0, 2)
	require.NoError(t, s0.Load(context.Background(), path, ""))

	buf, err := s0.PullGraphList(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{37}, decodeIDs(t, buf))

	buf, err = s0.PullGraphList(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint64{59}, decodeIDs(t, buf))

	buf, err = s0.PullGraphList(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{37, 59}, decodeIDs(t, buf))

	again, err := s0.PullGraphList(0, 10)
	require.NoError(t, err)
	assert.Equal(t, buf, again)

	buf, err = s0.PullGraphList(5, 10)
	require.NoError(t, err)
	assert.Empty(t, buf)

	buf, err = s0.PullGraphList(0, 0)
	require.NoError(t, err)
	assert.Empty(t, buf)

	_, err = s0.PullGraphList(-1, 1)
	assert.Error(t, err)
}

// TestRandomSample tests sampling order and caps
func TestRandomSample(t *testing.T) {
	path := writeFixture(t, "nodes.txt", fixture)
	s0 := newTestTable(t, 0, 2)
	require.NoError(t, s0.Load(context.Background(), path, ""))

	slots, err := s0.RandomSample(context.Background(), []uint64{37, 96, 59}, 4)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	edges, err := graph.DecodeEdges(slots[0])
	require.NoError(t, err)
	assert.Len(t, edges, 3)
	assert.ElementsMatch(t, []uint64{96, 59, 97}, []uint64{edges[0].ID, edges[1].ID, edges[2].ID})

	assert.Empty(t, slots[1], "id owned by another server")

	edges, err = graph.DecodeEdges(slots[2])
	require.NoError(t, err)
	assert.Len(t, edges, 3)
	for _, e := range edges {
		assert.Contains(t, []uint64{37, 96, 97}, e.ID)
	}

	slots, err = s0.RandomSample(context.Background(), []uint64{37}, 2)
	require.NoError(t, err)
	edges, err = graph.DecodeEdges(slots[0])
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	slots, err = s0.RandomSample(context.Background(), []uint64{37}, 0)
	require.NoError(t, err)
	assert.Empty(t, slots[0])
}

// TestRandomSampleCancelled tests that a cancelled context stops submission
func TestRandomSampleCancelled(t *testing.T) {
	tbl, err := New(0, Options{ShardNum: 1, PoolSize: 1, QueueDepth: 1})
	require.NoError(t, err)
	defer tbl.Close()
	require.NoError(t, tbl.SetShard(0, 1))
	require.NoError(t, tbl.AddNode(1, nil))

	block := make(chan struct{})
	require.NoError(t, tbl.pool.submit(context.Background(), 1, func() { <-block }))
	require.NoError(t, tbl.pool.submit(context.Background(), 1, func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tbl.RandomSample(ctx, []uint64{1}, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}

// TestAddNodeAndEdge tests incremental mutation
func TestAddNodeAndEdge(t *testing.T) {
	tbl := newTestTable(t, 0, 2)
	require.NoError(t, tbl.AddNode(37, []byte("f")))
	require.NoError(t, tbl.AddEdge(37, graph.Edge{ID: 1, Weight: 1}))

	err := tbl.AddNode(96, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server 1")

	assert.ErrorIs(t, tbl.AddEdge(96, graph.Edge{ID: 1}), graph.ErrNotFound)
	assert.ErrorIs(t, tbl.AddEdge(38, graph.Edge{ID: 1}), graph.ErrNotFound)

	nodes, edges := tbl.Stat()
	assert.Equal(t, int64(1), nodes)
	assert.Equal(t, int64(1), edges)
}

// TestLoadErrors tests malformed sources and partial commits
func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		tbl := newTestTable(t, 0, 1)
		err := tbl.Load(ctx, filepath.Join(t.TempDir(), "absent.txt"), "")
		require.Error(t, err)
		assert.ErrorIs(t, err, graph.ErrLoad)
		assert.ErrorIs(t, err, storage.ErrSourceNotFound)
	})

	tests := []struct {
		name    string
		content string
		line    int
		kept    int64
	}{
		{name: "bad id", content: "1\ta\n2\tb\nxyz\tc\n", line: 3, kept: 2},
		{name: "bad neighbor", content: "1\ta\t2;1\n2\tb\tq;1\n", line: 2, kept: 1},
		{name: "bad weight", content: "1\ta\t2;heavy\n", line: 1, kept: 0},
		{name: "negative weight", content: "1\ta\n\n2\tb\t3;-1\n", line: 3, kept: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := newTestTable(t, 0, 1)
			err := tbl.Load(ctx, writeFixture(t, "bad.txt", tt.content), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, graph.ErrLoad)

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.line, le.Line)

			nodes, _ := tbl.Stat()
			assert.Equal(t, tt.kept, nodes)
		})
	}

	t.Run("unassigned", func(t *testing.T) {
		tbl, err := New(0, Options{ShardNum: 4})
		require.NoError(t, err)
		defer tbl.Close()
		assert.ErrorIs(t, tbl.Load(ctx, "x", ""), ErrUnassigned)
	})
}

// TestLoadFormats tests isolated nodes, default weights and duplicates
func TestLoadFormats(t *testing.T) {
	content := "5\tiso\n" +
		"6\tsix\t5\t\t7;2.5\r\n" +
		"   \n" +
		"6\tignored\t8;1\n"
	tbl := newTestTable(t, 0, 1)
	require.NoError(t, tbl.Load(context.Background(), writeFixture(t, "f.txt", content), ""))

	n, err := tbl.FindNode(5)
	require.NoError(t, err)
	assert.Equal(t, 0, n.EdgeCount())

	n, err = tbl.FindNode(6)
	require.NoError(t, err)
	assert.Equal(t, []byte("six"), n.Feature())
	assert.Equal(t, []graph.Edge{{ID: 5, Weight: 1}, {ID: 7, Weight: 2.5}, {ID: 8, Weight: 1}}, n.Edges())
}

// TestLoadCompressed tests codec selection through the load parameter
func TestLoadCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(fixture))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	tbl := newTestTable(t, 0, 1)
	require.NoError(t, tbl.Load(context.Background(), path, "gzip, shuffle"))
	nodes, edges := tbl.Stat()
	assert.Equal(t, int64(4), nodes)
	assert.Equal(t, int64(12), edges)
}

// TestParseLoadParam tests load parameter tokens
func TestParseLoadParam(t *testing.T) {
	opts := parseLoadParam("")
	assert.Equal(t, storage.CodecAuto, opts.codec)
	assert.Empty(t, opts.ignored)

	opts = parseLoadParam("zstd,foo, ,bar")
	assert.Equal(t, storage.CodecZstd, opts.codec)
	assert.Equal(t, []string{"foo", "bar"}, opts.ignored)
}

// TestConcurrentLoadAndSample tests loads racing with queries
func TestConcurrentLoadAndSample(t *testing.T) {
	path := writeFixture(t, "nodes.txt", fixture)
	tbl := newTestTable(t, 0, 1)
	require.NoError(t, tbl.Load(context.Background(), path, ""))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, tbl.Load(context.Background(), path, ""))
		}()
		go func() {
			defer wg.Done()
			slots, err := tbl.RandomSample(context.Background(), []uint64{37, 59, 96, 97}, 3)
			assert.NoError(t, err)
			for _, s := range slots {
				assert.Len(t, s, 3*graph.EdgeWireSize)
			}
		}()
	}
	wg.Wait()

	nodes, edges := tbl.Stat()
	assert.Equal(t, int64(4), nodes)
	assert.Equal(t, int64(12*5), edges)
}
