/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package decoder

import (
	"encoding/binary"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// dupGuard resolves Open Question 3 (duplicate-packet counting): rather
// than rescanning the packet_state byte array to answer "have I seen
// packet i", each in-flight frame keeps a small cuckoo filter keyed by
// packet index, giving an O(1) probabilistic membership check that scales
// to large packets-per-frame counts without a linear scan per packet.
//
// False positives are tolerable here: at worst a genuinely-new packet is
// miscounted as a duplicate, which only affects the packets_duplicate
// counter, never packets_received (that's driven by the exact
// packet_state byte, written regardless).
type dupGuard struct {
	filter *cuckoo.Filter
}

func newDupGuard(packetsPerFrame uint32) *dupGuard {
	cap := uint(packetsPerFrame)
	if cap == 0 {
		cap = 1
	}
	return &dupGuard{filter: cuckoo.NewFilter(cap)}
}

func key(packetIndex uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], packetIndex)
	return b[:]
}

func (g *dupGuard) SeenBefore(packetIndex uint32) bool {
	return g.filter.Lookup(key(packetIndex))
}

func (g *dupGuard) MarkSeen(packetIndex uint32) {
	g.filter.InsertUnique(key(packetIndex))
}
