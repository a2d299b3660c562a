package sdr

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestMockDeviceOpenClose(t *testing.T) {
	dev := NewMockDevice(DeviceConfig{Index: 0})

	t.Run("Open", func(t *testing.T) {
		if err := dev.Open(); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !dev.IsOpen() {
			t.Error("Expected device to be open")
		}
		if dev.OpenHandles() != 1 {
			t.Errorf("Expected 1 open handle, got %d", dev.OpenHandles())
		}
	})

	t.Run("Double Open Fails", func(t *testing.T) {
		if err := dev.Open(); err == nil {
			t.Error("Expected error opening an open device")
		}
	})

	t.Run("Close", func(t *testing.T) {
		if err := dev.Close(); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if dev.OpenHandles() != 0 {
			t.Errorf("Expected 0 open handles, got %d", dev.OpenHandles())
		}
	})

	t.Run("Close Is Idempotent", func(t *testing.T) {
		if err := dev.Close(); err != nil {
			t.Errorf("Expected closing a closed device to be a no-op, got: %v", err)
		}
		if dev.OpenHandles() != 0 {
			t.Errorf("Expected 0 open handles, got %d", dev.OpenHandles())
		}
	})

	t.Run("Fail Open", func(t *testing.T) {
		dev.FailOpen(true)
		if err := dev.Open(); err == nil {
			t.Error("Expected injected open failure")
		}
		if dev.OpenHandles() != 0 {
			t.Errorf("Expected 0 open handles after failed open, got %d", dev.OpenHandles())
		}
	})
}

func TestMockDeviceControlRequiresOpen(t *testing.T) {
	dev := NewMockDevice(DeviceConfig{})

	if err := dev.SetCenterFreq(154107500); err == nil {
		t.Error("Expected error setting frequency on closed device")
	}
	if _, err := dev.ReadIQ(make([]complex64, 16)); err == nil {
		t.Error("Expected error reading from closed device")
	}
}

func TestMockDeviceLockSlip(t *testing.T) {
	dev := NewMockDevice(DeviceConfig{})
	if err := dev.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	const target = 154107500
	dev.SlipLock(2)

	// First retune: still slipping.
	if err := dev.SetCenterFreq(target); err != nil {
		t.Fatalf("SetCenterFreq failed: %v", err)
	}
	got, _ := dev.GetCenterFreq()
	if got == target {
		t.Error("Expected slipped frequency on first readback")
	}

	// Second retune clears the slip.
	if err := dev.SetCenterFreq(target); err != nil {
		t.Fatalf("SetCenterFreq failed: %v", err)
	}
	got, _ = dev.GetCenterFreq()
	if got != target {
		t.Errorf("Expected lock after retunes, got %d", got)
	}
}

func TestMockDeviceIQSynthesis(t *testing.T) {
	dev := NewMockDevice(DeviceConfig{SampleRate: 256000})
	if err := dev.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	dev.SetTone(1000, 2500)

	buf := make([]complex64, 4096)
	n, err := dev.ReadIQ(buf)
	if err != nil {
		t.Fatalf("ReadIQ failed: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Expected %d samples, got %d", len(buf), n)
	}

	// All samples should sit on the unit circle.
	for i, s := range buf {
		mag := cmplx.Abs(complex128(s))
		if math.Abs(mag-1.0) > 1e-3 {
			t.Fatalf("Sample %d magnitude %f, expected 1.0", i, mag)
		}
	}

	// Phase must advance between samples (modulation present).
	moved := false
	for i := 1; i < len(buf); i++ {
		if buf[i] != buf[i-1] {
			moved = true
			break
		}
	}
	if !moved {
		t.Error("Expected phase movement in modulated IQ")
	}
}

func TestRangeHelpers(t *testing.T) {
	dev := NewMockDevice(DeviceConfig{MinHz: 24000000, MaxHz: 1766000000, MaxGainDB: 49.6})

	if !InRange(dev, 154107500) {
		t.Error("Expected 154.1075 MHz in range")
	}
	if InRange(dev, 1000) {
		t.Error("Expected 1 kHz out of range")
	}
	if !GainInRange(dev, 29.7) {
		t.Error("Expected 29.7 dB in range")
	}
	if GainInRange(dev, 80) {
		t.Error("Expected 80 dB out of range")
	}
}
