// Package shmem implements SharedBufferManager (spec.md §4.4): a fixed-size
// frame-slot pool living in a named POSIX shared-memory segment, mapped
// read-write by the receiver that creates it and read-write by every
// processor that opens it.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package shmem

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/OneOfOne/xxhash"
	"golang.org/x/sys/unix"

	"github.com/odin-detector/odin-data-sub001/cmn/cos"
	"github.com/odin-detector/odin-data-sub001/cmn/debug"
)

// headerSize is the packed little-endian on-disk layout:
// { manager_id u64, num_buffers u64, buffer_size u64 }.
const headerSize = 24

// Header is the decoded form of the segment's leading bytes.
type Header struct {
	ManagerID   uint64
	NumBuffers  uint64
	BufferSize  uint64
}

// SharedBufferManager owns one mmap'd segment and hands out bounds-checked
// slot views into it. The zero value is not usable; build one with Create
// or OpenExisting.
type SharedBufferManager struct {
	name   string
	file   *os.File
	data   []byte
	header Header
	owner  bool // true iff this process created (and therefore unlinks) the segment
}

func segPath(name string) string { return "/dev/shm/" + name }

// genManagerID derives a process-identifying id from the segment name and
// creation time; it need only be stable for the life of the pool, not
// globally unique.
func genManagerID(name string) uint64 {
	h := xxhash.New64()
	h.WriteString(name)
	h.WriteString(time.Now().UTC().String())
	return h.Sum64()
}

// Create allocates a new named segment sized for `num` slots of `size`
// bytes each, writes the header, and zeroes every slot. The caller (the
// receiver) owns segment lifecycle: Close(unlink=true) removes it.
func Create(name string, num, size uint64) (*SharedBufferManager, error) {
	debug.Assert(num > 0, "num_buffers must be > 0")
	total := int64(headerSize) + int64(num*size)

	f, err := os.OpenFile(segPath(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shmem: create %s: %w", name, err)
	}
	if err := f.Truncate(total); err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: truncate %s: %w", name, err)
	}

	m := &SharedBufferManager{name: name, file: f, owner: true}
	if err := m.mmap(total); err != nil {
		f.Close()
		return nil, err
	}
	m.header = Header{ManagerID: genManagerID(name), NumBuffers: num, BufferSize: size}
	m.writeHeader()
	return m, nil
}

// OpenExisting maps an already-created segment and reads its header; used
// by processors attaching to a receiver's pool.
func OpenExisting(name string) (*SharedBufferManager, error) {
	f, err := os.OpenFile(segPath(name), os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shmem: open %s: %w", name, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: stat %s: %w", name, err)
	}
	if fi.Size() < headerSize {
		f.Close()
		return nil, fmt.Errorf("shmem: %s: segment too small for a header", name)
	}

	m := &SharedBufferManager{name: name, file: f}
	if err := m.mmap(fi.Size()); err != nil {
		f.Close()
		return nil, err
	}
	m.readHeader()
	if m.header.NumBuffers == 0 {
		m.Close(false)
		return nil, fmt.Errorf("shmem: %s: num_buffers == 0 in header", name)
	}
	return m, nil
}

func (m *SharedBufferManager) mmap(size int64) error {
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("shmem: mmap %s: %w", m.name, err)
	}
	m.data = data
	return nil
}

func (m *SharedBufferManager) writeHeader() {
	binary.LittleEndian.PutUint64(m.data[0:8], m.header.ManagerID)
	binary.LittleEndian.PutUint64(m.data[8:16], m.header.NumBuffers)
	binary.LittleEndian.PutUint64(m.data[16:24], m.header.BufferSize)
}

func (m *SharedBufferManager) readHeader() {
	m.header.ManagerID = binary.LittleEndian.Uint64(m.data[0:8])
	m.header.NumBuffers = binary.LittleEndian.Uint64(m.data[8:16])
	m.header.BufferSize = binary.LittleEndian.Uint64(m.data[16:24])
}

// Capacity returns (num_buffers, buffer_size) from the header.
func (m *SharedBufferManager) Capacity() (num, size uint64) {
	return m.header.NumBuffers, m.header.BufferSize
}

func (m *SharedBufferManager) slotAddress(id uint64) int64 {
	return int64(headerSize) + int64(id*m.header.BufferSize)
}

// Slot returns a bounds-checked view of slot id's bytes. The returned slice
// aliases the mmap'd segment; callers on the processor side must treat it
// as read-only once the receiver has handed off ownership.
func (m *SharedBufferManager) Slot(id uint64) ([]byte, error) {
	if id >= m.header.NumBuffers {
		return nil, fmt.Errorf("shmem: slot %d out of range [0,%d)", id, m.header.NumBuffers)
	}
	off := m.slotAddress(id)
	return m.data[off : off+int64(m.header.BufferSize)], nil
}

// Close unmaps the segment. unlink should be true only for the receiver
// that created the pool, and only on a clean shutdown (spec.md §4.4: "name
// is... unlinked when the receiver exits cleanly").
func (m *SharedBufferManager) Close(unlink bool) error {
	var errs cos.Errs
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			errs.Add(err)
		}
		m.data = nil
	}
	if err := m.file.Close(); err != nil {
		errs.Add(err)
	}
	if unlink && m.owner {
		if err := os.Remove(segPath(m.name)); err != nil && !os.IsNotExist(err) {
			errs.Add(err)
		}
	}
	if _, err := errs.JoinErr(); err != nil {
		return err
	}
	return nil
}
