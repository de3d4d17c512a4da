package models

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/taigrr/diorama/pkg/fetch"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/render"
)

// GLTF is a loaded glTF asset.
type GLTF struct {
	// Scene is the default scene, or the first one when none is marked.
	Scene      *render.Group
	Scenes     []*render.Group
	Animations []AnimationClip
	Asset      gltf.Asset
	Document   *gltf.Document
}

// AnimationClip names an animation and its length. Playback is not
// supported.
type AnimationClip struct {
	Name     string
	Duration float64 // seconds
}

// ParseGLTF decodes a .gltf or .glb document. Side files are resolved
// relative to url.
func (l *Loader) ParseGLTF(ctx context.Context, data []byte, url string) (*GLTF, error) {
	return l.parseGLTF(ctx, data, url)
}

func (l *Loader) parseGLTF(ctx context.Context, data []byte, url string) (*GLTF, error) {
	doc := new(gltf.Document)
	dec := gltf.NewDecoderFS(bytes.NewReader(data), l.fetcher.FS(ctx, url))
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("decode gltf: %w", err)
	}

	b := &gltfBuilder{
		ctx:       ctx,
		loader:    l,
		doc:       doc,
		url:       url,
		geometry:  make(map[[2]int]*Mesh),
		materials: make(map[int]*render.Material),
		textures:  make(map[int]*render.Texture),
	}
	out := &GLTF{Asset: doc.Asset, Document: doc}

	for i, s := range doc.Scenes {
		group := render.NewGroup()
		group.Name = s.Name
		if group.Name == "" {
			group.Name = fmt.Sprintf("scene%d", i)
		}
		for _, n := range s.Nodes {
			node, err := b.node(n, 0)
			if err != nil {
				return nil, err
			}
			group.Add(node)
		}
		out.Scenes = append(out.Scenes, group)
	}
	if len(out.Scenes) == 0 {
		// no scene list: every root node goes into one group
		group := render.NewGroup()
		group.Name = path.Base(url)
		for _, n := range rootNodes(doc) {
			node, err := b.node(n, 0)
			if err != nil {
				return nil, err
			}
			group.Add(node)
		}
		out.Scenes = append(out.Scenes, group)
	}

	out.Scene = out.Scenes[0]
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(out.Scenes) {
		out.Scene = out.Scenes[*doc.Scene]
	}

	for i, a := range doc.Animations {
		clip := AnimationClip{Name: a.Name}
		if clip.Name == "" {
			clip.Name = fmt.Sprintf("animation%d", i)
		}
		for _, s := range a.Samplers {
			if s.Input < 0 || s.Input >= len(doc.Accessors) {
				continue
			}
			if in := doc.Accessors[s.Input]; len(in.Max) > 0 {
				clip.Duration = max(clip.Duration, in.Max[0])
			}
		}
		out.Animations = append(out.Animations, clip)
	}

	l.logger.Debug("gltf loaded", "url", url, "scenes", len(out.Scenes), "meshes", len(doc.Meshes))
	return out, nil
}

func rootNodes(doc *gltf.Document) []int {
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i, isChild := range child {
		if !isChild {
			roots = append(roots, i)
		}
	}
	return roots
}

// maxNodeDepth guards against cyclic node graphs.
const maxNodeDepth = 64

type gltfBuilder struct {
	ctx    context.Context
	loader *Loader
	doc    *gltf.Document
	url    string

	geometry  map[[2]int]*Mesh // by mesh and primitive index
	materials map[int]*render.Material
	textures  map[int]*render.Texture
}

func (b *gltfBuilder) node(idx, depth int) (*render.Group, error) {
	if idx < 0 || idx >= len(b.doc.Nodes) {
		return nil, fmt.Errorf("node %d out of range", idx)
	}
	if depth > maxNodeDepth {
		return nil, errors.New("node hierarchy too deep")
	}
	n := b.doc.Nodes[idx]

	g := render.NewGroup()
	g.Name = n.Name
	g.Position, g.Rotation, g.Scale = nodeTransform(n)

	if n.Mesh != nil {
		meshes, err := b.mesh(*n.Mesh)
		if err != nil {
			return nil, err
		}
		g.Add(meshes...)
	}
	for _, c := range n.Children {
		child, err := b.node(c, depth+1)
		if err != nil {
			return nil, err
		}
		g.Add(child)
	}
	return g, nil
}

// nodeTransform reads a node's TRS, treating zero-valued fields as unset.
func nodeTransform(n *gltf.Node) (math3d.Vec3, math3d.Quat, math3d.Vec3) {
	var zero [16]float64
	m := math3d.Mat4(n.Matrix)
	if n.Matrix != zero && m != math3d.Identity() {
		return m.Decompose()
	}

	pos := math3d.V3(n.Translation[0], n.Translation[1], n.Translation[2])
	rot := math3d.IdentityQuat()
	if n.Rotation != [4]float64{} {
		rot = math3d.Quat{X: n.Rotation[0], Y: n.Rotation[1], Z: n.Rotation[2], W: n.Rotation[3]}
	}
	scale := math3d.V3(1, 1, 1)
	if n.Scale != [3]float64{} {
		scale = math3d.V3(n.Scale[0], n.Scale[1], n.Scale[2])
	}
	return pos, rot, scale
}

func (b *gltfBuilder) mesh(idx int) ([]render.Object, error) {
	if idx < 0 || idx >= len(b.doc.Meshes) {
		return nil, fmt.Errorf("mesh %d out of range", idx)
	}
	gm := b.doc.Meshes[idx]

	var out []render.Object
	for pi, prim := range gm.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			b.loader.logger.Debug("skipping primitive", "mesh", gm.Name, "mode", prim.Mode)
			continue
		}
		geom, err := b.primitive(idx, pi, prim)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", gm.Name, pi, err)
		}
		if geom == nil {
			continue
		}
		mat, err := b.material(prim.Material)
		if err != nil {
			return nil, err
		}
		m := render.NewMesh(geom, mat)
		m.Name = gm.Name
		if len(gm.Primitives) > 1 {
			m.Name = fmt.Sprintf("%s.%d", gm.Name, pi)
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *gltfBuilder) accessor(idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(b.doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", idx)
	}
	return b.doc.Accessors[idx], nil
}

// primitive builds the geometry of one primitive, sharing it between nodes
// that instance the same mesh.
func (b *gltfBuilder) primitive(meshIdx, primIdx int, prim *gltf.Primitive) (*Mesh, error) {
	key := [2]int{meshIdx, primIdx}
	if g, ok := b.geometry[key]; ok {
		return g, nil
	}

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, nil
	}
	acr, err := b.accessor(posIdx)
	if err != nil {
		return nil, err
	}
	positions, err := modeler.ReadPosition(b.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	var normals [][3]float32
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		if acr, err = b.accessor(idx); err != nil {
			return nil, err
		}
		if normals, err = modeler.ReadNormal(b.doc, acr, nil); err != nil {
			return nil, fmt.Errorf("read normals: %w", err)
		}
	}

	var uvs [][2]float32
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		if acr, err = b.accessor(idx); err != nil {
			return nil, err
		}
		if uvs, err = modeler.ReadTextureCoord(b.doc, acr, nil); err != nil {
			return nil, fmt.Errorf("read uvs: %w", err)
		}
	}

	mesh := NewMesh(b.doc.Meshes[meshIdx].Name)
	mesh.Vertices = make([]MeshVertex, len(positions))
	for i, p := range positions {
		v := MeshVertex{Position: math3d.V3(float64(p[0]), float64(p[1]), float64(p[2]))}
		if i < len(normals) {
			n := normals[i]
			v.Normal = math3d.V3(float64(n[0]), float64(n[1]), float64(n[2]))
		}
		if i < len(uvs) {
			// glTF puts V=0 at the top of the image
			v.UV = math3d.V2(float64(uvs[i][0]), 1-float64(uvs[i][1]))
		}
		mesh.Vertices[i] = v
	}

	// glTF front faces are counter-clockwise, as render expects.
	if prim.Indices != nil {
		acr, err := b.accessor(*prim.Indices)
		if err != nil {
			return nil, err
		}
		indices, err := modeler.ReadIndices(b.doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
		for i := 0; i+2 < len(indices); i += 3 {
			a, bb, c := int(indices[i]), int(indices[i+1]), int(indices[i+2])
			if a >= len(positions) || bb >= len(positions) || c >= len(positions) {
				return nil, fmt.Errorf("index out of range at triangle %d", i/3)
			}
			mesh.AddFace(a, bb, c)
		}
	} else {
		for i := 0; i+2 < len(positions); i += 3 {
			mesh.AddFace(i, i+1, i+2)
		}
	}

	if len(normals) == 0 {
		b.loader.fillNormals(mesh)
	}
	mesh.CalculateBounds()
	b.geometry[key] = mesh
	return mesh, nil
}

func (b *gltfBuilder) material(idx *int) (*render.Material, error) {
	if idx == nil {
		return render.NewMaterial(render.ColorWhite), nil
	}
	if m, ok := b.materials[*idx]; ok {
		return m, nil
	}
	if *idx < 0 || *idx >= len(b.doc.Materials) {
		return nil, fmt.Errorf("material %d out of range", *idx)
	}
	gm := b.doc.Materials[*idx]

	mat := render.NewMaterial(render.ColorWhite)
	mat.Name = gm.Name
	mat.DoubleSided = gm.DoubleSided
	if _, ok := gm.Extensions["KHR_materials_unlit"]; ok {
		mat.Unlit = true
	}
	if pbr := gm.PBRMetallicRoughness; pbr != nil {
		if f := pbr.BaseColorFactor; f != nil {
			mat.Color = linearColor(f[0], f[1], f[2], f[3])
		}
		if ti := pbr.BaseColorTexture; ti != nil {
			tex, err := b.texture(ti.Index)
			if err != nil {
				// a missing texture leaves the surface untextured
				b.loader.logger.Warn("gltf texture", "url", b.url, "texture", ti.Index, "err", err)
			} else {
				mat.Map = tex
			}
		}
	}
	b.materials[*idx] = mat
	return mat, nil
}

// linearColor converts a linear glTF color factor to sRGB.
func linearColor(r, g, bl, a float64) render.Color {
	c := colorful.LinearRgb(r, g, bl).Clamped()
	r8, g8, b8 := c.RGB255()
	return render.RGBA(r8, g8, b8, uint8(max(0, min(1, a))*255+0.5))
}

func (b *gltfBuilder) texture(idx int) (*render.Texture, error) {
	if tex, ok := b.textures[idx]; ok {
		return tex, nil
	}
	if idx < 0 || idx >= len(b.doc.Textures) || b.doc.Textures[idx].Source == nil {
		return nil, fmt.Errorf("texture %d has no image", idx)
	}
	src := *b.doc.Textures[idx].Source
	if src < 0 || src >= len(b.doc.Images) {
		return nil, fmt.Errorf("image %d out of range", src)
	}
	data, err := b.imageData(b.doc.Images[src])
	if err != nil {
		return nil, err
	}
	if !IsImage(data) {
		return nil, ErrUnsupportedFormat
	}
	tex, err := render.DecodeTexture(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	tex.FilterMode = render.FilterBilinear
	b.textures[idx] = tex
	return tex, nil
}

func (b *gltfBuilder) imageData(img *gltf.Image) ([]byte, error) {
	if img.BufferView != nil {
		if *img.BufferView < 0 || *img.BufferView >= len(b.doc.BufferViews) {
			return nil, fmt.Errorf("buffer view %d out of range", *img.BufferView)
		}
		bv := b.doc.BufferViews[*img.BufferView]
		if bv.Buffer < 0 || bv.Buffer >= len(b.doc.Buffers) {
			return nil, fmt.Errorf("buffer %d out of range", bv.Buffer)
		}
		buf := b.doc.Buffers[bv.Buffer].Data
		end := bv.ByteOffset + bv.ByteLength
		if end > len(buf) {
			return nil, errors.New("image buffer view past end of buffer")
		}
		return buf[bv.ByteOffset:end], nil
	}
	if rest, ok := strings.CutPrefix(img.URI, "data:"); ok {
		_, payload, found := strings.Cut(rest, ";base64,")
		if !found {
			return nil, errors.New("image data uri is not base64")
		}
		return base64.StdEncoding.DecodeString(payload)
	}
	if img.URI == "" {
		return nil, errors.New("image has no source")
	}
	return b.loader.fetcher.Get(b.ctx, fetch.Resolve(b.url, img.URI), nil)
}
