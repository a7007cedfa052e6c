package nifti

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
)

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func seqImage(t *testing.T, nx, ny, nz, nt int) *Image {
	t.Helper()
	n := nx * ny * nz * nt
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	img, err := NewImage(nx, ny, nz, nt, data)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	return img
}

func TestNewImage(t *testing.T) {
	img := seqImage(t, 2, 3, 4, 5)
	nx, ny, nz, nt := img.Dims()
	if nx != 2 || ny != 3 || nz != 4 || nt != 5 {
		t.Errorf("Dims = (%d,%d,%d,%d), want (2,3,4,5)", nx, ny, nz, nt)
	}
	if img.NVoxels() != 24 {
		t.Errorf("NVoxels = %d, want 24", img.NVoxels())
	}

	// x-fastest ordering: (1, 0, 0, 0) is flat index 1.
	if got := img.At(1, 0, 0, 0); got != 1 {
		t.Errorf("At(1,0,0,0) = %f, want 1", got)
	}
	// Volume 1 starts at flat index 24.
	if got := img.At(0, 0, 0, 1); got != 24 {
		t.Errorf("At(0,0,0,1) = %f, want 24", got)
	}

	if _, err := NewImage(2, 2, 2, 1, make([]float64, 7)); err == nil {
		t.Error("NewImage with wrong data length should fail")
	}
	if _, err := NewImage(0, 2, 2, 1, nil); err == nil {
		t.Error("NewImage with zero dimension should fail")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	img := seqImage(t, 3, 2, 2, 4)

	var buf bytes.Buffer
	if err := Write(&buf, img); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	nx, ny, nz, nt := got.Dims()
	if nx != 3 || ny != 2 || nz != 2 || nt != 4 {
		t.Fatalf("Dims = (%d,%d,%d,%d), want (3,2,2,4)", nx, ny, nz, nt)
	}
	for i, want := range img.Data() {
		if math.Abs(got.Data()[i]-want) > 1e-4 {
			t.Fatalf("voxel %d = %f, want %f", i, got.Data()[i], want)
		}
	}
}

func TestSaveLoadGzip(t *testing.T) {
	img := seqImage(t, 2, 2, 2, 3)
	path := filepath.Join(t.TempDir(), "vol.nii.gz")

	if err := Save(path, img); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.NVolumes() != 3 {
		t.Errorf("NVolumes = %d, want 3", got.NVolumes())
	}
	if math.Abs(got.At(1, 1, 1, 2)-img.At(1, 1, 1, 2)) > 1e-4 {
		t.Errorf("At(1,1,1,2) = %f, want %f", got.At(1, 1, 1, 2), img.At(1, 1, 1, 2))
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(bytes.NewReader(make([]byte, 400))); err == nil {
		t.Error("Read of zeroed bytes should fail")
	}
	if _, err := Read(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Error("Read of truncated header should fail")
	}
}

func TestReadTruncatedData(t *testing.T) {
	img := seqImage(t, 2, 2, 2, 2)
	var buf bytes.Buffer
	if err := Write(&buf, img); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	short := buf.Bytes()[:buf.Len()-8]
	if _, err := Read(bytes.NewReader(short)); err == nil {
		t.Error("Read of truncated voxel data should fail")
	}
}

func TestMerge(t *testing.T) {
	a := seqImage(t, 2, 2, 1, 1)
	b := seqImage(t, 2, 2, 1, 2)

	merged, err := Merge(a, b)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.NVolumes() != 3 {
		t.Errorf("NVolumes = %d, want 3", merged.NVolumes())
	}
	// First volume is a, following volumes are b's in order.
	if merged.At(1, 0, 0, 0) != a.At(1, 0, 0, 0) {
		t.Error("merged volume 0 does not match first input")
	}
	if merged.At(1, 1, 0, 2) != b.At(1, 1, 0, 1) {
		t.Error("merged volume 2 does not match second input's volume 1")
	}

	c := seqImage(t, 3, 2, 1, 1)
	if _, err := Merge(a, c); err == nil {
		t.Error("Merge with mismatched grids should fail")
	}
	if _, err := Merge(); err == nil {
		t.Error("Merge of nothing should fail")
	}
}

func TestScaling(t *testing.T) {
	// int16 data with slope 2 and intercept 1 must decode scaled.
	img := seqImage(t, 2, 1, 1, 1)
	var buf bytes.Buffer
	if err := Write(&buf, img); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	raw := buf.Bytes()

	// Patch scl_slope and scl_inter in the written header.
	putFloat32(raw[112:116], 2)
	putFloat32(raw[116:120], 1)

	got, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if math.Abs(got.At(1, 0, 0, 0)-(1*2+1)) > 1e-4 {
		t.Errorf("scaled voxel = %f, want 3", got.At(1, 0, 0, 0))
	}
}
