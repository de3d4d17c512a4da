package models

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/g3n/engine/loader/obj"
	"github.com/taigrr/diorama/pkg/fetch"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/render"
)

// ParseOBJ reads Wavefront OBJ text into a group holding one mesh per object
// and material. Material libraries are resolved relative to baseURL; a
// library that cannot be loaded is logged and skipped.
func (l *Loader) ParseOBJ(ctx context.Context, r io.Reader, baseURL string) (*render.Group, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read obj: %w", err)
	}
	libs := l.materialLibraries(ctx, data, baseURL)

	// a nil mtl reader makes the decoder open Matlib from disk itself
	dec, err := obj.DecodeReader(bytes.NewReader(data), bytes.NewReader(libs.data))
	if err != nil {
		return nil, fmt.Errorf("decode obj: %w", err)
	}
	for _, w := range dec.Warnings {
		l.logger.Debug("obj", "url", baseURL, "warning", w)
	}

	chunks, err := objChunks(dec)
	if err != nil {
		return nil, err
	}

	materials := make(map[string]*render.Material)
	group := render.NewGroup()
	group.Name = path.Base(baseURL)
	for _, c := range chunks {
		if c.missingNormals {
			l.fillNormals(c.mesh)
		}
		c.mesh.CalculateBounds()
		mat := materials[c.material]
		if mat == nil {
			mat = l.objMaterial(ctx, c.material, dec.Materials[c.material], libs.owner[c.material])
			materials[c.material] = mat
		}
		m := render.NewMesh(c.mesh, mat)
		m.Name = c.mesh.Name
		group.Add(m)
	}
	return group, nil
}

// ParseOBJ parses with the default loader.
func ParseOBJ(r io.Reader, baseURL string) (*render.Group, error) {
	return defaultLoader.ParseOBJ(context.Background(), r, baseURL)
}

type mtlLibraries struct {
	data  []byte
	owner map[string]string // material name to the url of its library
}

// materialLibraries fetches every mtllib the OBJ text names and joins them.
func (l *Loader) materialLibraries(ctx context.Context, data []byte, baseURL string) mtlLibraries {
	libs := mtlLibraries{owner: make(map[string]string)}
	var buf bytes.Buffer
	for _, fields := range statements(data, "mtllib") {
		for _, name := range fields {
			url := fetch.Resolve(baseURL, name)
			lib, err := l.fetcher.Get(ctx, url, nil)
			if err != nil {
				l.logger.Warn("obj material library", "url", url, "err", err)
				continue
			}
			for _, def := range statements(lib, "newmtl") {
				if len(def) > 0 {
					libs.owner[def[0]] = url
				}
			}
			buf.Write(lib)
			buf.WriteByte('\n')
		}
	}
	libs.data = buf.Bytes()
	return libs
}

// statements returns the arguments of every line starting with keyword.
func statements(data []byte, keyword string) [][]string {
	var out [][]string
	for line := range strings.Lines(string(data)) {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == keyword {
			out = append(out, fields[1:])
		}
	}
	return out
}

type objChunk struct {
	mesh           *Mesh
	material       string
	index          map[[3]int]int // position/uv/normal triple to vertex
	missingNormals bool
}

// objChunks splits the decoded faces per object and material and fan
// triangulates each polygon around its first corner.
func objChunks(dec *obj.Decoder) ([]*objChunk, error) {
	positions := len(dec.Vertices) / 3
	uvs := len(dec.Uvs) / 2
	normals := len(dec.Normals) / 3

	var chunks []*objChunk
	for _, o := range dec.Objects {
		byMaterial := make(map[string]*objChunk)
		for _, f := range o.Faces {
			if len(f.Vertices) < 3 {
				return nil, fmt.Errorf("obj object %q: face needs 3 corners, got %d", o.Name, len(f.Vertices))
			}
			c := byMaterial[f.Material]
			if c == nil {
				c = &objChunk{mesh: NewMesh(o.Name), material: f.Material, index: make(map[[3]int]int)}
				byMaterial[f.Material] = c
				chunks = append(chunks, c)
			}

			corners := make([]int, len(f.Vertices))
			for i, vi := range f.Vertices {
				if vi < 0 || vi >= positions {
					return nil, fmt.Errorf("obj object %q: vertex index %d out of range", o.Name, vi+1)
				}
				// absent uv and normal indices hold a sentinel past the end
				key := [3]int{vi, -1, -1}
				if i < len(f.Uvs) && f.Uvs[i] >= 0 && f.Uvs[i] < uvs {
					key[1] = f.Uvs[i]
				}
				if i < len(f.Normals) && f.Normals[i] >= 0 && f.Normals[i] < normals {
					key[2] = f.Normals[i]
				}
				corners[i] = c.vertex(dec, key)
			}
			for i := 1; i+1 < len(corners); i++ {
				c.mesh.AddFace(corners[0], corners[i], corners[i+1])
			}
		}
	}
	return chunks, nil
}

func (c *objChunk) vertex(dec *obj.Decoder, key [3]int) int {
	if idx, ok := c.index[key]; ok {
		return idx
	}
	p := dec.Vertices[key[0]*3:]
	pos := math3d.V3(float64(p[0]), float64(p[1]), float64(p[2]))

	var uv math3d.Vec2
	if key[1] >= 0 {
		t := dec.Uvs[key[1]*2:]
		uv = math3d.V2(float64(t[0]), float64(t[1]))
	}
	var normal math3d.Vec3
	if key[2] >= 0 {
		n := dec.Normals[key[2]*3:]
		normal = math3d.V3(float64(n[0]), float64(n[1]), float64(n[2]))
	} else {
		c.missingNormals = true
	}
	idx := c.mesh.AddVertex(pos, normal, uv)
	c.index[key] = idx
	return idx
}

// objMaterial converts a decoded material. Names no library defines become
// plain white materials.
func (l *Loader) objMaterial(ctx context.Context, name string, m *obj.Material, libURL string) *render.Material {
	mat := render.NewMaterial(render.ColorWhite)
	mat.Name = name
	if m == nil || libURL == "" {
		return mat
	}
	alpha := uint8(255)
	if m.Opacity > 0 {
		// zero means the library left d unset
		alpha = unit8(float64(m.Opacity))
	}
	mat.Color = render.RGBA(unit8(float64(m.Diffuse.R)), unit8(float64(m.Diffuse.G)), unit8(float64(m.Diffuse.B)), alpha)
	if m.MapKd != "" {
		url := fetch.Resolve(libURL, m.MapKd)
		tex, err := l.LoadTexture(ctx, url)
		if err != nil {
			l.logger.Warn("obj texture", "url", url, "err", err)
		} else {
			mat.Map = tex
		}
	}
	return mat
}

func unit8(v float64) uint8 {
	return uint8(max(0, min(1, v))*255 + 0.5)
}
