package model

import (
	"sort"
)

// Partition row indices belonging to one machine, in input order
type Partition struct {
	MachineID int
	Indices   []int
}

// PartitionByMachine groups n rows by machine id. Partitions are ordered by
// machine id and each keeps its rows in input order.
func PartitionByMachine(n int, machineOf func(i int) int) []Partition {
	pos := make(map[int]int)
	var parts []Partition
	for i := 0; i < n; i++ {
		id := machineOf(i)
		p, ok := pos[id]
		if !ok {
			p = len(parts)
			pos[id] = p
			parts = append(parts, Partition{MachineID: id})
		}
		parts[p].Indices = append(parts[p].Indices, i)
	}

	sort.Slice(parts, func(a, b int) bool {
		return parts[a].MachineID < parts[b].MachineID
	})
	return parts
}
