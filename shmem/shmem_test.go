/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package shmem_test

import (
	"fmt"
	"testing"

	"github.com/odin-detector/odin-data-sub001/shmem"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	name := fmt.Sprintf("odin-test-round-%d", 1)
	m, err := shmem.Create(name, 4, 4096)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close(true)

	num, size := m.Capacity()
	if num != 4 || size != 4096 {
		t.Fatalf("got capacity (%d,%d), want (4,4096)", num, size)
	}

	opened, err := shmem.OpenExisting(name)
	if err != nil {
		t.Fatalf("OpenExisting: %v", err)
	}
	defer opened.Close(false)

	onum, osize := opened.Capacity()
	if onum != num || osize != size {
		t.Fatalf("opened capacity (%d,%d) != created (%d,%d)", onum, osize, num, size)
	}
}

func TestSlotWriteVisibleAcrossMappings(t *testing.T) {
	name := fmt.Sprintf("odin-test-slot-%d", 2)
	m, err := shmem.Create(name, 2, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close(true)

	slot, err := m.Slot(1)
	if err != nil {
		t.Fatalf("Slot(1): %v", err)
	}
	copy(slot, []byte("hello"))

	opened, err := shmem.OpenExisting(name)
	if err != nil {
		t.Fatalf("OpenExisting: %v", err)
	}
	defer opened.Close(false)

	other, err := opened.Slot(1)
	if err != nil {
		t.Fatalf("Slot(1) via second mapping: %v", err)
	}
	if string(other[:5]) != "hello" {
		t.Fatalf("got %q, want %q", other[:5], "hello")
	}
}

func TestSlotOutOfRange(t *testing.T) {
	name := fmt.Sprintf("odin-test-oob-%d", 3)
	m, err := shmem.Create(name, 2, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close(true)

	if _, err := m.Slot(2); err == nil {
		t.Fatal("expected out-of-range slot id to error")
	}
}
