package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"go.uber.org/zap"
)

// gpuState owns the WebGPU objects for one adapter plus a pipeline cache
// keyed by element count, since the element count is baked into each shader.
type gpuState struct {
	name      string
	instance  *wgpu.Instance
	adapter   *wgpu.Adapter
	device    *wgpu.Device
	queue     *wgpu.Queue
	pipelines map[int]*wgpu.ComputePipeline
}

// initGPU brings up an adapter. index selects from the enumerated adapters;
// pass -1 to pick automatically, preferring discrete hardware.
func initGPU(index int, log *zap.Logger) (*gpuState, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("failed to create WebGPU instance")
	}

	s := &gpuState{instance: instance, pipelines: make(map[int]*wgpu.ComputePipeline)}

	adapters := instance.EnumerateAdapters(nil)
	for i, a := range adapters {
		info := a.GetInfo()
		log.Debug("adapter",
			zap.Int("index", i),
			zap.String("name", info.Name),
			zap.String("vendor", info.VendorName))
	}
	switch {
	case index >= 0:
		if index >= len(adapters) {
			instance.Release()
			return nil, fmt.Errorf("adapter index %d out of range, %d available", index, len(adapters))
		}
		s.adapter = adapters[index]
	default:
		// Prefer a discrete NVIDIA part when one is listed.
		for _, a := range adapters {
			info := a.GetInfo()
			if strings.Contains(strings.ToLower(info.Name), "nvidia") ||
				strings.Contains(strings.ToLower(info.VendorName), "nvidia") {
				s.adapter = a
				break
			}
		}
	}

	// Fall back through power preferences like any other WebGPU client.
	tryRequest := func(opts *wgpu.RequestAdapterOptions) {
		if s.adapter != nil {
			return
		}
		if a, err := instance.RequestAdapter(opts); err == nil {
			s.adapter = a
		}
	}
	tryRequest(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceHighPerformance})
	tryRequest(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceLowPower})
	tryRequest(nil)
	if s.adapter == nil {
		instance.Release()
		return nil, fmt.Errorf("no WebGPU adapter available")
	}

	info := s.adapter.GetInfo()
	s.name = info.Name
	if info.VendorName != "" {
		s.name = fmt.Sprintf("%s (%s)", info.Name, info.VendorName)
	}

	device, err := s.adapter.RequestDevice(nil)
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("request device on %s: %w", s.name, err)
	}
	s.device = device
	s.queue = device.GetQueue()
	log.Info("using GPU adapter", zap.String("adapter", s.name))
	return s, nil
}

func addShader(size int) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> a : array<f32>;
		@group(0) @binding(1) var<storage, read> b : array<f32>;
		@group(0) @binding(2) var<storage, read_write> out : array<f32>;

		const SIZE: u32 = %du;

		@compute @workgroup_size(256)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= SIZE) { return; }
			out[idx] = a[idx] + b[idx];
		}
	`, size)
}

func (s *gpuState) pipeline(size int) (*wgpu.ComputePipeline, error) {
	if p, ok := s.pipelines[size]; ok {
		return p, nil
	}
	module, err := s.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          fmt.Sprintf("add_%d_shader", size),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: addShader(size)},
	})
	if err != nil {
		return nil, err
	}
	p, err := s.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   fmt.Sprintf("add_%d_pipe", size),
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return nil, err
	}
	s.pipelines[size] = p
	return p, nil
}

// add computes dst += src through the elementwise kernel and reads the sum
// back into dst.
func (s *gpuState) add(dst, src []float64) error {
	n := len(dst)
	a := make([]float32, n)
	b := make([]float32, n)
	for i := range dst {
		a[i] = float32(dst[i])
		b[i] = float32(src[i])
	}

	pipe, err := s.pipeline(n)
	if err != nil {
		return err
	}

	sizeBytes := uint64(n * 4)
	aBuf, err := s.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "add_a",
		Contents: wgpu.ToBytes(a),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	defer aBuf.Destroy()
	bBuf, err := s.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "add_b",
		Contents: wgpu.ToBytes(b),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	defer bBuf.Destroy()
	outBuf, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "add_out",
		Size:  sizeBytes,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return err
	}
	defer outBuf.Destroy()
	staging, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "add_staging",
		Size:  sizeBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	defer staging.Destroy()

	bind, err := s.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "add_bind",
		Layout: pipe.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: aBuf, Size: aBuf.GetSize()},
			{Binding: 1, Buffer: bBuf, Size: bBuf.GetSize()},
			{Binding: 2, Buffer: outBuf, Size: outBuf.GetSize()},
		},
	})
	if err != nil {
		return err
	}
	defer bind.Release()

	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipe)
	pass.SetBindGroup(0, bind, nil)
	pass.DispatchWorkgroups(uint32((n+255)/256), 1, 1)
	pass.End()
	encoder.CopyBufferToBuffer(outBuf, 0, staging, 0, sizeBytes)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	s.queue.Submit(cmd)

	done := false
	var mapErr error
	err = staging.MapAsync(wgpu.MapModeRead, 0, sizeBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map status %v", status)
		}
		done = true
	})
	if err != nil {
		return fmt.Errorf("MapAsync failed: %w", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for !done {
		s.device.Poll(false, nil)
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for the staging buffer")
		}
		time.Sleep(time.Millisecond)
	}
	if mapErr != nil {
		return mapErr
	}

	data := staging.GetMappedRange(0, uint(sizeBytes))
	sums := wgpu.FromBytes[float32](data)
	for i := range dst {
		dst[i] = float64(sums[i])
	}
	staging.Unmap()
	return nil
}

func (s *gpuState) release() {
	for _, p := range s.pipelines {
		p.Release()
	}
	if s.device != nil {
		s.device.Release()
	}
	if s.adapter != nil {
		s.adapter.Release()
	}
	if s.instance != nil {
		s.instance.Release()
	}
}
