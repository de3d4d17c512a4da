package models

import (
	"bytes"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/taigrr/diorama/pkg/fetch"
)

// Format is a model file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatGLB
	FormatGLTF
	FormatOBJ
)

func (f Format) String() string {
	switch f {
	case FormatGLB:
		return "glb"
	case FormatGLTF:
		return "gltf"
	case FormatOBJ:
		return "obj"
	default:
		return "unknown"
	}
}

var (
	typeGLB  = filetype.NewType("glb", "model/gltf-binary")
	typeGLTF = filetype.NewType("gltf", "model/gltf+json")
	typeOBJ  = filetype.NewType("obj", "model/obj")
)

func init() {
	filetype.AddMatcher(typeGLB, matchGLB)
	filetype.AddMatcher(typeGLTF, matchGLTF)
	filetype.AddMatcher(typeOBJ, matchOBJ)
}

func matchGLB(buf []byte) bool {
	return len(buf) >= 12 && bytes.HasPrefix(buf, []byte("glTF"))
}

func matchGLTF(buf []byte) bool {
	head := bytes.TrimLeft(buf[:min(len(buf), 4096)], " \t\r\n\xef\xbb\xbf")
	return len(head) > 0 && head[0] == '{' && bytes.Contains(buf, []byte(`"asset"`))
}

// matchOBJ looks for an OBJ statement among the first lines.
func matchOBJ(buf []byte) bool {
	head := buf[:min(len(buf), 1024)]
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	for _, line := range bytes.Split(head, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		for _, kw := range []string{"v ", "vn ", "vt ", "f ", "o ", "g ", "mtllib ", "usemtl ", "s "} {
			if bytes.HasPrefix(line, []byte(kw)) {
				return true
			}
		}
		return false
	}
	return false
}

// DetectFormat identifies a model from its first bytes, falling back to the
// URL's extension.
func DetectFormat(head []byte, url string) Format {
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		switch kind {
		case typeGLB:
			return FormatGLB
		case typeGLTF:
			return FormatGLTF
		case typeOBJ:
			return FormatOBJ
		}
	}
	switch fetch.Ext(url) {
	case ".glb":
		return FormatGLB
	case ".gltf":
		return FormatGLTF
	case ".obj":
		return FormatOBJ
	}
	return FormatUnknown
}

// IsImage reports whether buf starts like an image the texture decoder
// supports.
func IsImage(buf []byte) bool {
	kind, err := filetype.Image(buf)
	if err != nil || kind == types.Unknown {
		return false
	}
	switch kind.Extension {
	case "png", "jpg", "gif", "webp", "bmp":
		return true
	}
	return false
}
