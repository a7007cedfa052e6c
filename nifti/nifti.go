// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz). Voxel data is decoded to float64 with the header's scaling slope
// and intercept applied, so downstream reductions never see raw integer
// intensities.
package nifti

import (
	"fmt"

	"github.com/neurogo/clustergam/pkg/errors"
)

// NIfTI-1 on-disk datatype codes (subset supported here).
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
)

const (
	headerSize = 348
	magicN1    = "n+1" // single-file magic, followed by \0
)

// Header holds the NIfTI-1 fields clustergam cares about. Geometry fields
// beyond the voxel grid (orientation, qform/sform) are retained raw but not
// interpreted.
type Header struct {
	Dim      [8]int16 // dim[0] = number of dimensions
	Datatype int16
	Bitpix   int16
	Pixdim   [8]float32
	VoxOffset float32
	SclSlope  float32
	SclInter  float32
	Descrip   [80]byte
	LittleEndian bool
}

// Image is a 3D or 4D volume in x-fastest voxel order.
type Image struct {
	hdr Header

	// nx, ny, nz are the spatial dims, nt the number of volumes (1 for 3D).
	nx, ny, nz, nt int

	data []float64
}

// NewImage builds an in-memory image from dims and voxel data in x-fastest
// order. data length must be nx*ny*nz*nt.
func NewImage(nx, ny, nz, nt int, data []float64) (*Image, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 || nt <= 0 {
		return nil, errors.NewValueError("nifti.NewImage", fmt.Sprintf("non-positive dimension (%d,%d,%d,%d)", nx, ny, nz, nt))
	}
	want := nx * ny * nz * nt
	if len(data) != want {
		return nil, errors.NewDimensionError("nifti.NewImage", want, len(data), 0)
	}

	hdr := Header{
		Datatype:     DTFloat32,
		Bitpix:       32,
		SclSlope:     1,
		LittleEndian: true,
	}
	hdr.Dim[0] = 4
	if nt == 1 {
		hdr.Dim[0] = 3
	}
	hdr.Dim[1], hdr.Dim[2], hdr.Dim[3], hdr.Dim[4] = int16(nx), int16(ny), int16(nz), int16(nt)
	for i := range hdr.Pixdim {
		hdr.Pixdim[i] = 1
	}

	return &Image{hdr: hdr, nx: nx, ny: ny, nz: nz, nt: nt, data: data}, nil
}

// Header returns a copy of the image header.
func (img *Image) Header() Header { return img.hdr }

// Dims returns the spatial dims and volume count.
func (img *Image) Dims() (nx, ny, nz, nt int) {
	return img.nx, img.ny, img.nz, img.nt
}

// NVoxels returns the number of voxels in one volume.
func (img *Image) NVoxels() int { return img.nx * img.ny * img.nz }

// NVolumes returns the number of volumes (timepoints).
func (img *Image) NVolumes() int { return img.nt }

// At returns the intensity at voxel (x, y, z) in volume t.
func (img *Image) At(x, y, z, t int) float64 {
	return img.data[img.index(x, y, z, t)]
}

// Volume returns the voxel data of volume t as a flat slice in x-fastest
// order. The slice aliases the image's backing array.
func (img *Image) Volume(t int) []float64 {
	n := img.NVoxels()
	return img.data[t*n : (t+1)*n]
}

// Data returns the full backing slice in x-fastest, volume-major order.
func (img *Image) Data() []float64 { return img.data }

func (img *Image) index(x, y, z, t int) int {
	return ((t*img.nz+z)*img.ny+y)*img.nx + x
}

// SameGrid reports whether two images share spatial dims.
func (img *Image) SameGrid(other *Image) bool {
	return img.nx == other.nx && img.ny == other.ny && img.nz == other.nz
}

// Merge concatenates images along the volume axis. All inputs must share
// spatial dims; 3D inputs contribute one volume each, 4D inputs contribute
// all of theirs. Implements time-point merging for runs supplied as separate
// files.
func Merge(imgs ...*Image) (*Image, error) {
	if len(imgs) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "nifti.Merge")
	}
	if len(imgs) == 1 {
		return imgs[0], nil
	}

	first := imgs[0]
	nt := 0
	for i, img := range imgs {
		if !first.SameGrid(img) {
			return nil, errors.NewValueError("nifti.Merge",
				fmt.Sprintf("image %d has grid %dx%dx%d, want %dx%dx%d",
					i, img.nx, img.ny, img.nz, first.nx, first.ny, first.nz))
		}
		nt += img.nt
	}

	data := make([]float64, 0, first.NVoxels()*nt)
	for _, img := range imgs {
		data = append(data, img.data...)
	}

	return NewImage(first.nx, first.ny, first.nz, nt, data)
}
