package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dreamware/graphps/internal/rpc"
	"github.com/dreamware/graphps/internal/table"
)

func (s *Service) handlerTable() map[rpc.Command]handler {
	return map[rpc.Command]handler{
		rpc.StopServer:       {fn: s.stopServer},
		rpc.LoadOneTable:     {fn: s.loadOneTable, needsTable: true},
		rpc.LoadAllTable:     {fn: s.loadAllTable},
		rpc.PrintTableStat:   {fn: s.printTableStat, needsTable: true},
		rpc.Barrier:          {fn: s.barrier, needsTable: true},
		rpc.StartProfiler:    {fn: s.startProfiler},
		rpc.StopProfiler:     {fn: s.stopProfiler},
		rpc.PullGraphList:    {fn: s.pullGraphList, needsTable: true},
		rpc.GraphSample:      {fn: s.graphSample, needsTable: true},
		rpc.GraphBatchSample: {fn: s.graphBatchSample, needsTable: true},
	}
}

func (s *Service) stopServer(_ context.Context, _ table.Table, req *rpc.Request, _ *rpc.Response) error {
	if err := req.ExpectParams(0); err != nil {
		return err
	}
	s.logger.Info("stop requested", "client", req.ClientID)
	s.requestStop()
	return nil
}

func (s *Service) loadOneTable(ctx context.Context, tbl table.Table, req *rpc.Request, _ *rpc.Response) error {
	if err := req.ExpectParams(2); err != nil {
		return err
	}
	return tbl.Load(ctx, string(req.Params[0]), string(req.Params[1]))
}

// loadAllTable loads the same source into every hosted table. It stops at
// the first failure.
func (s *Service) loadAllTable(ctx context.Context, _ table.Table, req *rpc.Request, _ *rpc.Response) error {
	if err := req.ExpectParams(2); err != nil {
		return err
	}
	path, param := string(req.Params[0]), string(req.Params[1])
	for _, id := range s.tableIDs() {
		if err := s.tables[id].Load(ctx, path, param); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) printTableStat(_ context.Context, tbl table.Table, req *rpc.Request, resp *rpc.Response) error {
	if err := req.ExpectParams(0); err != nil {
		return err
	}
	nodes, edges := tbl.Stat()
	s.logger.Info("table stat", "table", tbl.ID(), "nodes", nodes, "edges", edges)
	resp.Data = rpc.EncodeStat(nodes, edges)
	return nil
}

func (s *Service) barrier(ctx context.Context, tbl table.Table, req *rpc.Request, _ *rpc.Response) error {
	if err := req.ExpectParams(1); err != nil {
		return err
	}
	return tbl.Barrier(ctx, req.ClientID, string(req.Params[0]))
}

func (s *Service) startProfiler(_ context.Context, _ table.Table, _ *rpc.Request, _ *rpc.Response) error {
	if s.opts.ProfileDir == "" {
		return fmt.Errorf("%w: profiling disabled", rpc.ErrUnsupported)
	}
	path := s.profilePath()
	if err := s.profiler.start(path); err != nil {
		return err
	}
	s.logger.Info("profiler started", "path", path)
	return nil
}

func (s *Service) stopProfiler(_ context.Context, _ table.Table, _ *rpc.Request, _ *rpc.Response) error {
	err := s.profiler.stop()
	if errors.Is(err, errProfilerIdle) {
		return nil
	}
	if err == nil {
		s.logger.Info("profiler stopped", "path", s.profilePath())
	}
	return err
}

// profilePath names the CPU profile after the server rank.
func (s *Service) profilePath() string {
	s.shardMu.Lock()
	rank := s.rank
	s.shardMu.Unlock()
	return filepath.Join(s.opts.ProfileDir, fmt.Sprintf("server_%d_profile", rank))
}

func graphOps(tbl table.Table) (table.GraphOperations, error) {
	ops, ok := tbl.(table.GraphOperations)
	if !ok {
		return nil, fmt.Errorf("%w: table %d is not a graph table", rpc.ErrUnsupported, tbl.ID())
	}
	return ops, nil
}

func (s *Service) pullGraphList(_ context.Context, tbl table.Table, req *rpc.Request, resp *rpc.Response) error {
	if err := req.ExpectParams(2); err != nil {
		return err
	}
	start, err := rpc.DecodeInt32(req.Params[0])
	if err != nil {
		return err
	}
	size, err := rpc.DecodeInt32(req.Params[1])
	if err != nil {
		return err
	}
	if start < 0 || size < 0 {
		return rpc.Protocolf("negative window start=%d size=%d", start, size)
	}
	ops, err := graphOps(tbl)
	if err != nil {
		return err
	}
	resp.Attachment, err = ops.PullGraphList(int(start), int(size))
	return err
}

func (s *Service) graphSample(ctx context.Context, tbl table.Table, req *rpc.Request, resp *rpc.Response) error {
	if err := req.ExpectParams(2); err != nil {
		return err
	}
	id, err := rpc.DecodeUint64(req.Params[0])
	if err != nil {
		return err
	}
	k, err := decodeSampleSize(req.Params[1])
	if err != nil {
		return err
	}
	ops, err := graphOps(tbl)
	if err != nil {
		return err
	}
	slots, err := ops.RandomSample(ctx, []uint64{id}, k)
	if err != nil {
		return err
	}
	resp.Attachment = slots[0]
	return nil
}

func (s *Service) graphBatchSample(ctx context.Context, tbl table.Table, req *rpc.Request, resp *rpc.Response) error {
	if err := req.ExpectParams(2); err != nil {
		return err
	}
	ids, err := rpc.DecodeUint64s(req.Params[0])
	if err != nil {
		return err
	}
	k, err := decodeSampleSize(req.Params[1])
	if err != nil {
		return err
	}
	ops, err := graphOps(tbl)
	if err != nil {
		return err
	}
	slots, err := ops.RandomSample(ctx, ids, k)
	if err != nil {
		return err
	}
	resp.Attachment = rpc.EncodeSlots(slots)
	return nil
}

func decodeSampleSize(p []byte) (int, error) {
	k, err := rpc.DecodeInt32(p)
	if err != nil {
		return 0, err
	}
	if k < 0 {
		return 0, rpc.Protocolf("negative sample size %d", k)
	}
	return int(k), nil
}
