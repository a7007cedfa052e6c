package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/neurogo/clustergam/pkg/errors"
)

// Load reads a 3D or 4D NIfTI-1 image from a .nii or .nii.gz file.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "nifti.Load: open %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "nifti.Load: gzip %s", path)
		}
		defer gz.Close()
		r = gz
	}

	img, err := Read(r)
	if err != nil {
		return nil, errors.Wrapf(err, "nifti.Load: %s", path)
	}
	return img, nil
}

// Read decodes a NIfTI-1 image from a stream.
func Read(r io.Reader) (*Image, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(err, "nifti.Read: header")
	}

	hdr, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	nx, ny, nz, nt := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3]), 1
	if hdr.Dim[0] == 4 {
		nt = int(hdr.Dim[4])
	}
	nvox := nx * ny * nz * nt
	if nvox <= 0 {
		return nil, errors.NewValueError("nifti.Read", "image has no voxels")
	}

	// The header is followed by the extension flag and padding up to
	// vox_offset; skip whatever lies between.
	skip := int64(hdr.VoxOffset) - headerSize
	if skip < 0 {
		return nil, errors.NewValueError("nifti.Read", fmt.Sprintf("vox_offset %g precedes header end", hdr.VoxOffset))
	}
	if _, err := io.CopyN(io.Discard, r, skip); err != nil {
		return nil, errors.Wrap(err, "nifti.Read: skip to voxel data")
	}

	data, err := readVoxels(r, hdr, nvox)
	if err != nil {
		return nil, err
	}

	// Apply intensity scaling. slope == 0 means the data is unscaled.
	slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
	if slope != 0 && (slope != 1 || inter != 0) {
		for i, v := range data {
			data[i] = v*slope + inter
		}
	}

	img := &Image{hdr: hdr, nx: nx, ny: ny, nz: nz, nt: nt, data: data}
	return img, nil
}

func parseHeader(raw []byte) (Header, error) {
	var hdr Header

	// sizeof_hdr doubles as the byte-order probe.
	var order binary.ByteOrder = binary.LittleEndian
	hdr.LittleEndian = true
	if order.Uint32(raw[0:4]) != headerSize {
		order = binary.BigEndian
		hdr.LittleEndian = false
		if order.Uint32(raw[0:4]) != headerSize {
			return hdr, errors.NewValueError("nifti.Read", "not a NIfTI-1 file (bad sizeof_hdr)")
		}
	}

	magic := string(raw[344:347])
	if magic != magicN1 {
		return hdr, errors.NewValueError("nifti.Read", fmt.Sprintf("unsupported magic %q (two-file .hdr/.img pairs are not supported)", magic))
	}

	for i := 0; i < 8; i++ {
		hdr.Dim[i] = int16(order.Uint16(raw[40+2*i : 42+2*i]))
		hdr.Pixdim[i] = math.Float32frombits(order.Uint32(raw[76+4*i : 80+4*i]))
	}
	hdr.Datatype = int16(order.Uint16(raw[70:72]))
	hdr.Bitpix = int16(order.Uint16(raw[72:74]))
	hdr.VoxOffset = math.Float32frombits(order.Uint32(raw[108:112]))
	hdr.SclSlope = math.Float32frombits(order.Uint32(raw[112:116]))
	hdr.SclInter = math.Float32frombits(order.Uint32(raw[116:120]))
	copy(hdr.Descrip[:], raw[148:228])

	if hdr.Dim[0] < 3 || hdr.Dim[0] > 4 {
		return hdr, errors.NewValueError("nifti.Read", fmt.Sprintf("dim[0] = %d, want a 3D or 4D image", hdr.Dim[0]))
	}

	return hdr, nil
}

func readVoxels(r io.Reader, hdr Header, nvox int) ([]float64, error) {
	var bytesPer int
	switch hdr.Datatype {
	case DTUint8:
		bytesPer = 1
	case DTInt16:
		bytesPer = 2
	case DTInt32, DTFloat32:
		bytesPer = 4
	case DTFloat64:
		bytesPer = 8
	default:
		return nil, errors.NewValueError("nifti.Read", fmt.Sprintf("unsupported datatype code %d", hdr.Datatype))
	}

	raw := make([]byte, nvox*bytesPer)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(err, "nifti.Read: voxel data truncated")
	}

	var order binary.ByteOrder = binary.LittleEndian
	if !hdr.LittleEndian {
		order = binary.BigEndian
	}

	data := make([]float64, nvox)
	switch hdr.Datatype {
	case DTUint8:
		for i := range data {
			data[i] = float64(raw[i])
		}
	case DTInt16:
		for i := range data {
			data[i] = float64(int16(order.Uint16(raw[2*i : 2*i+2])))
		}
	case DTInt32:
		for i := range data {
			data[i] = float64(int32(order.Uint32(raw[4*i : 4*i+4])))
		}
	case DTFloat32:
		for i := range data {
			data[i] = float64(math.Float32frombits(order.Uint32(raw[4*i : 4*i+4])))
		}
	case DTFloat64:
		for i := range data {
			data[i] = math.Float64frombits(order.Uint64(raw[8*i : 8*i+8]))
		}
	}

	return data, nil
}
