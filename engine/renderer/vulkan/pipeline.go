package vulkan

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// maxPushConstantRanges bounds the ranges of a layout. Only 128 bytes of
// push constants are guaranteed, at 4 byte granularity.
const maxPushConstantRanges = 32

// Fixed shadow depth bias, applied when a pipeline asks for one.
const (
	depthBiasConstant = 1.25
	depthBiasSlope    = 1.75
)

type ShaderModule struct {
	dev    *Device
	handle vk.ShaderModule
}

func (m *ShaderModule) Destroy() {
	if m.handle != vk.NullShaderModule {
		vk.DestroyShaderModule(m.dev.handle, m.handle, nil)
		m.handle = vk.NullShaderModule
	}
}

type PipelineLayout struct {
	dev    *Device
	handle vk.PipelineLayout
}

func (l *PipelineLayout) Destroy() {
	if l.handle != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(l.dev.handle, l.handle, nil)
		l.handle = vk.NullPipelineLayout
	}
}

type Pipeline struct {
	dev    *Device
	handle vk.Pipeline
}

func (p *Pipeline) Destroy() {
	if p.handle != vk.NullPipeline {
		vk.DestroyPipeline(p.dev.handle, p.handle, nil)
		p.handle = vk.NullPipeline
	}
}

func (d *Device) CreateShaderModule(code []byte) (driver.ShaderModule, error) {
	words, err := spirvWords(code)
	if err != nil {
		return nil, err
	}
	m := &ShaderModule{dev: d}
	res := vk.CreateShaderModule(d.handle, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}, nil, &m.handle)
	if err := check(res, "vkCreateShaderModule"); err != nil {
		return nil, err
	}
	return m, nil
}

// spirvWords reinterprets SPIR-V bytecode as the little endian words the
// driver expects.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Wrapf(core.ErrGeneric, "SPIR-V size %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutInfo) (driver.PipelineLayout, error) {
	if len(info.PushConstants) > maxPushConstantRanges {
		return nil, errors.Newf("cannot have more than %d push constant ranges, got %d", maxPushConstantRanges, len(info.PushConstants))
	}
	sets := make([]vk.DescriptorSetLayout, len(info.SetLayouts))
	for i, l := range info.SetLayouts {
		sets[i] = l.(*DescriptorSetLayout).handle
	}
	ranges := make([]vk.PushConstantRange, len(info.PushConstants))
	for i, r := range info.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	l := &PipelineLayout{dev: d}
	res := vk.CreatePipelineLayout(d.handle, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(sets)),
		PSetLayouts:            sets,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &l.handle)
	if err := check(res, "vkCreatePipelineLayout"); err != nil {
		return nil, err
	}
	return l, nil
}

func shaderStage(s driver.ShaderStageInfo) vk.PipelineShaderStageCreateInfo {
	entry := s.Entry
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(s.Stage),
		Module: s.Module.(*ShaderModule).handle,
		PName:  safeString(entry),
	}
}

func (d *Device) CreateGraphicsPipeline(info driver.GraphicsPipelineInfo) (driver.Pipeline, error) {
	if len(info.ColorFormats) > maxColorAttachments {
		return nil, errors.Newf("pipeline has %d color attachments, at most %d are supported", len(info.ColorFormats), maxColorAttachments)
	}
	rp, err := d.renderPass(compatiblePassKey(info.ColorFormats, info.DepthFormat))
	if err != nil {
		return nil, err
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		stages[i] = shaderStage(s)
	}

	bindings := make([]vk.VertexInputBindingDescription, len(info.VertexBindings))
	for i, b := range info.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(info.VertexAttributes))
	for i, a := range info.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopology(info.Topology),
	}
	// Viewport and scissor are dynamic.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonMode(info.PolygonMode),
		CullMode:    vk.CullModeFlags(info.CullMode),
		FrontFace:   vk.FrontFace(info.FrontFace),
		LineWidth:   1.0,
	}
	if info.DepthBias {
		raster.DepthBiasEnable = vk.True
		raster.DepthBiasConstantFactor = depthBiasConstant
		raster.DepthBiasSlopeFactor = depthBiasSlope
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOp(info.DepthCompare),
	}
	if info.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if info.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	writeMask := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	blends := make([]vk.PipelineColorBlendAttachmentState, len(info.ColorFormats))
	for i := range blends {
		blends[i] = vk.PipelineColorBlendAttachmentState{ColorWriteMask: writeMask}
		if info.Blend {
			blends[i].BlendEnable = vk.True
			blends[i].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blends[i].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].ColorBlendOp = vk.BlendOpAdd
			blends[i].SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
			blends[i].DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].AlphaBlendOp = vk.BlendOpAdd
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	create := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamic,
		Layout:              info.Layout.(*PipelineLayout).handle,
		RenderPass:          rp,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.handle, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{create}, nil, pipelines)
	if err := check(res, "vkCreateGraphicsPipelines"); err != nil {
		return nil, err
	}
	core.LogDebug("graphics pipeline created with %d color attachments", len(info.ColorFormats))
	return &Pipeline{dev: d, handle: pipelines[0]}, nil
}

func (d *Device) CreateComputePipeline(info driver.ComputePipelineInfo) (driver.Pipeline, error) {
	create := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              shaderStage(info.Stage),
		Layout:             info.Layout.(*PipelineLayout).handle,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(d.handle, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{create}, nil, pipelines)
	if err := check(res, "vkCreateComputePipelines"); err != nil {
		return nil, err
	}
	return &Pipeline{dev: d, handle: pipelines[0]}, nil
}
