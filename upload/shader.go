// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package upload

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed layout.wgsl
var layoutWGSL string

// LayoutEntryPoint is the compute entry point of the layout module.
const LayoutEntryPoint = "validate_draws"

// LayoutWorkgroupSize is the workgroup size of LayoutEntryPoint.
const LayoutWorkgroupSize = 64

// LayoutSource returns the WGSL declaring the uploaded buffer layouts.
func LayoutSource() string { return layoutWGSL }

// CompileLayout compiles the layout module to SPIR-V words.
func CompileLayout() ([]uint32, error) {
	spirv, err := naga.Compile(layoutWGSL)
	if err != nil {
		return nil, fmt.Errorf("compile layout shader: %w", err)
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}

// CreateLayoutModule compiles the layout module and creates it on device.
// The caller owns the returned module.
func CreateLayoutModule(device hal.Device, label string) (hal.ShaderModule, error) {
	words, err := CompileLayout()
	if err != nil {
		return nil, err
	}
	mod, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("create layout module: %w", err)
	}
	return mod, nil
}
