package nifti

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"

	"github.com/neurogo/clustergam/pkg/errors"
)

// Save writes the image as a single-file float32 NIfTI-1 volume. A .gz
// suffix selects gzip compression.
func Save(path string, img *Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "nifti.Save: create %s", path)
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}

	bw := bufio.NewWriter(w)
	if err := Write(bw, img); err != nil {
		return errors.Wrapf(err, "nifti.Save: %s", path)
	}
	return errors.Wrapf(bw.Flush(), "nifti.Save: %s", path)
}

// Write encodes the image as little-endian float32 NIfTI-1. Scaling is
// folded into the voxel data, so the written header carries slope 1.
func Write(w io.Writer, img *Image) error {
	const voxOffset = 352 // header + extension flag

	raw := make([]byte, voxOffset)
	order := binary.LittleEndian

	order.PutUint32(raw[0:4], headerSize)

	dim0 := int16(4)
	if img.nt == 1 {
		dim0 = 3
	}
	dims := [8]int16{dim0, int16(img.nx), int16(img.ny), int16(img.nz), int16(img.nt), 1, 1, 1}
	for i, d := range dims {
		order.PutUint16(raw[40+2*i:42+2*i], uint16(d))
	}
	order.PutUint16(raw[70:72], uint16(DTFloat32))
	order.PutUint16(raw[72:74], 32) // bitpix
	for i, p := range img.hdr.Pixdim {
		order.PutUint32(raw[76+4*i:80+4*i], math.Float32bits(p))
	}
	order.PutUint32(raw[108:112], math.Float32bits(voxOffset))
	order.PutUint32(raw[112:116], math.Float32bits(1)) // scl_slope
	order.PutUint32(raw[116:120], math.Float32bits(0)) // scl_inter
	copy(raw[148:228], img.hdr.Descrip[:])
	copy(raw[344:348], append([]byte(magicN1), 0))

	if _, err := w.Write(raw); err != nil {
		return errors.Wrap(err, "nifti.Write: header")
	}

	buf := make([]byte, 4*len(img.data))
	for i, v := range img.data {
		order.PutUint32(buf[4*i:4*i+4], math.Float32bits(float32(v)))
	}
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "nifti.Write: voxel data")
	}
	return nil
}
