package rpc

import "fmt"

// Command is the numeric id of a server command. Ids are part of the wire
// format and never change.
type Command int32

const (
	StopServer       Command = 0
	LoadOneTable     Command = 1
	LoadAllTable     Command = 2
	PrintTableStat   Command = 3
	Barrier          Command = 4
	StartProfiler    Command = 5
	StopProfiler     Command = 6
	PullGraphList    Command = 7
	GraphSample      Command = 8
	GraphBatchSample Command = 9
)

var commandNames = map[Command]string{
	StopServer:       "STOP_SERVER",
	LoadOneTable:     "LOAD_ONE_TABLE",
	LoadAllTable:     "LOAD_ALL_TABLE",
	PrintTableStat:   "PRINT_TABLE_STAT",
	Barrier:          "BARRIER",
	StartProfiler:    "START_PROFILER",
	StopProfiler:     "STOP_PROFILER",
	PullGraphList:    "PULL_GRAPH_LIST",
	GraphSample:      "GRAPH_SAMPLE",
	GraphBatchSample: "GRAPH_BATCH_SAMPLE",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COMMAND(%d)", int32(c))
}

// Commands returns every defined command in id order.
func Commands() []Command {
	return []Command{
		StopServer, LoadOneTable, LoadAllTable, PrintTableStat, Barrier,
		StartProfiler, StopProfiler, PullGraphList, GraphSample, GraphBatchSample,
	}
}
