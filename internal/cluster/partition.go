package cluster

// Partitioning is shared by graph servers and client stubs; both sides must
// use these functions so a node id always routes to the server that stores
// it.
//
//	id ──mod shardNum──▶ shard index ──div shardsPerServer──▶ server rank

// ShardIndexForID returns the global shard index of id.
func ShardIndexForID(id uint64, shardNum int) int {
	if shardNum <= 0 {
		return 0
	}
	return int(id % uint64(shardNum))
}

// ShardsPerServer returns how many consecutive shards each server owns.
func ShardsPerServer(shardNum, serverCount int) int {
	if serverCount <= 0 || shardNum <= 0 {
		return shardNum
	}
	return (shardNum + serverCount - 1) / serverCount
}

// ServerIndexForID returns the rank of the server owning id.
func ServerIndexForID(id uint64, shardNum, serverCount int) int {
	per := ShardsPerServer(shardNum, serverCount)
	if per <= 0 {
		return 0
	}
	return ShardIndexForID(id, shardNum) / per
}

// ShardRange returns the half-open shard range [start, end) owned by rank.
// Trailing ranks may own an empty range when shardNum does not divide evenly.
func ShardRange(rank, shardNum, serverCount int) (start, end int) {
	per := ShardsPerServer(shardNum, serverCount)
	start = min(rank*per, shardNum)
	end = min(start+per, shardNum)
	return start, end
}
