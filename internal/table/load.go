package table

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dreamware/graphps/internal/graph"
	"github.com/dreamware/graphps/internal/storage"
)

const maxLineSize = 64 << 20

// LoadError reports a failed bulk load. Line is the 1-based source line
// that failed, or 0 when the source could not be read at all.
type LoadError struct {
	Path string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("load %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("load %s line %d: %v", e.Path, e.Line, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is reports whether target is graph.ErrLoad.
func (e *LoadError) Is(target error) bool { return target == graph.ErrLoad }

// loadOptions is the parsed form of a load parameter.
type loadOptions struct {
	codec   storage.Codec
	ignored []string
}

// parseLoadParam reads a comma separated list of tokens. Codec names force
// decompression; other tokens are returned as ignored.
func parseLoadParam(param string) loadOptions {
	var opts loadOptions
	for _, tok := range strings.Split(param, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if c, ok := storage.ParseCodec(tok); ok {
			opts.codec = c
			continue
		}
		opts.ignored = append(opts.ignored, tok)
	}
	return opts
}

// Load streams a node source into the locally owned shards. Each line is
// id<TAB>feature<TAB>neighbor;weight<TAB>... and ids owned by other servers
// are skipped. A malformed line aborts the load; lines before it stay
// committed.
func (t *GraphTable) Load(ctx context.Context, path, param string) error {
	opts := parseLoadParam(param)
	for _, tok := range opts.ignored {
		t.logger.WarnContext(ctx, "ignoring unrecognized load parameter", "path", path, "token", tok)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.servers == 0 {
		return &LoadError{Path: path, Err: ErrUnassigned}
	}

	lines, nodes, err := t.loadLocked(ctx, path, opts.codec)
	t.opts.Metrics.AddLoadedLines(t.id, lines)
	t.logger.LogLoad(ctx, path, lines, nodes, err)

	var total, edges int64
	for _, s := range t.shards {
		st := s.GetStats()
		total += st.Nodes
		edges += st.Edges
	}
	t.opts.Metrics.SetTableSize(t.id, total, edges)
	return err
}

func (t *GraphTable) loadLocked(ctx context.Context, path string, codec storage.Codec) (lines, nodes int, err error) {
	src, err := t.opts.Opener.Open(ctx, path, codec)
	if err != nil {
		return 0, 0, &LoadError{Path: path, Err: err}
	}
	defer src.Close()

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		lines++
		if lines%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return lines, nodes, &LoadError{Path: path, Line: lines, Err: err}
			}
		}
		line := bytes.TrimRight(sc.Bytes(), "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		added, err := t.loadLine(line)
		if err != nil {
			return lines, nodes, &LoadError{Path: path, Line: lines, Err: err}
		}
		if added {
			nodes++
		}
	}
	if err := sc.Err(); err != nil {
		return lines, nodes, &LoadError{Path: path, Line: lines + 1, Err: err}
	}
	return lines, nodes, nil
}

// loadLine applies one source line and reports whether it belonged to this
// server.
func (t *GraphTable) loadLine(line []byte) (bool, error) {
	fields := strings.Split(string(line), "\t")
	id, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid node id %q", fields[0])
	}

	edges := make([]graph.Edge, 0, max(len(fields)-2, 0))
	for _, f := range fields[min(2, len(fields)):] {
		if f == "" {
			continue
		}
		e, err := parseEdge(f)
		if err != nil {
			return false, err
		}
		edges = append(edges, e)
	}

	s := t.shardFor(id)
	if s == nil {
		return false, nil
	}
	var feature []byte
	if len(fields) > 1 {
		feature = []byte(fields[1])
	}
	h := s.AddNode(id, feature)
	for _, e := range edges {
		if err := s.AppendEdge(h, e); err != nil {
			return false, err
		}
	}
	return true, nil
}

var errBadWeight = errors.New("weight must be a finite non-negative number")

// parseEdge reads neighbor;weight. A missing weight means 1.
func parseEdge(field string) (graph.Edge, error) {
	idPart, weightPart, hasWeight := strings.Cut(field, ";")
	id, err := strconv.ParseUint(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return graph.Edge{}, fmt.Errorf("invalid neighbor id %q", idPart)
	}
	e := graph.Edge{ID: id, Weight: 1}
	if !hasWeight {
		return e, nil
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(weightPart), 64)
	if err != nil {
		return graph.Edge{}, fmt.Errorf("invalid weight %q for neighbor %d", weightPart, id)
	}
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return graph.Edge{}, fmt.Errorf("neighbor %d: %w", id, errBadWeight)
	}
	e.Weight = w
	return e, nil
}
