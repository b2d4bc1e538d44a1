package main

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
)

// Tray icons, one per bridge state.
var (
	iconData          = makeIcon(color.RGBA{0x9e, 0x9e, 0x9e, 0xff})
	iconDataConnected = makeIcon(color.RGBA{0x2e, 0x7d, 0x32, 0xff})
	iconDataError     = makeIcon(color.RGBA{0xc6, 0x28, 0x28, 0xff})
	iconDataStopped   = makeIcon(color.RGBA{0x61, 0x61, 0x61, 0xff})
)

const iconSize = 32

// makeIcon draws a filled circle with an "N"-shaped cut out. Windows gets the
// PNG wrapped in an ICO container.
func makeIcon(fill color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	center := float64(iconSize-1) / 2
	radius := center - 1

	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			img.SetRGBA(x, y, fill)
		}
	}

	white := color.RGBA{0xff, 0xff, 0xff, 0xff}
	lo, hi := iconSize/4, iconSize-iconSize/4
	for y := lo; y < hi; y++ {
		for _, x := range []int{lo, lo + 1, hi - 2, hi - 1} {
			img.SetRGBA(x, y, white)
		}
		// diagonal
		d := lo + (y-lo)*(hi-lo-2)/(hi-lo)
		img.SetRGBA(d, y, white)
		img.SetRGBA(d+1, y, white)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return wrapICO(buf.Bytes(), iconSize)
	}
	return buf.Bytes()
}

// wrapICO embeds a PNG image in a single-entry ICO file.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	header := struct {
		Reserved, Type, Count uint16
	}{0, 1, 1}
	entry := struct {
		Width, Height, Colors, Reserved uint8
		Planes, BitCount                uint16
		Size, Offset                    uint32
	}{
		Width:    uint8(size),
		Height:   uint8(size),
		Planes:   1,
		BitCount: 32,
		Size:     uint32(len(pngData)),
		Offset:   6 + 16,
	}
	binary.Write(&buf, binary.LittleEndian, header)
	binary.Write(&buf, binary.LittleEndian, entry)
	buf.Write(pngData)
	return buf.Bytes()
}
