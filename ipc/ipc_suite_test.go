/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ipc_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestIPC(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}
