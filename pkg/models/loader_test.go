package models

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taigrr/diorama/pkg/fetch"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/render"
)

const quadOBJ = `# two objects
mtllib quad.mtl
o quad
usemtl red
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
o tri
usemtl missing
v 0 0 0
v 1 0 0
v 0 1 0
f 5 6 7
`

const quadMTL = `newmtl red
Kd 1 0 0
d 0.5
map_Kd nope.png
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeQuadGLB(t *testing.T, dir string) string {
	t.Helper()
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2, 0, 2, 3})
	doc.Materials = []*gltf.Material{{
		Name: "red",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{1, 0, 0, 1},
		},
	}}
	doc.Meshes = []*gltf.Mesh{{
		Name: "quad",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: map[string]int{gltf.POSITION: pos},
			Material:   gltf.Index(0),
		}},
	}}
	doc.Nodes = []*gltf.Node{
		{Name: "root", Mesh: gltf.Index(0), Translation: [3]float64{1, 2, 3}, Children: []int{1}},
		{Name: "child", Mesh: gltf.Index(0)},
	}
	doc.Scenes = []*gltf.Scene{{Name: "main", Nodes: []int{0}}}
	doc.Scene = gltf.Index(0)

	path := filepath.Join(dir, "quad.glb")
	require.NoError(t, gltf.SaveBinary(doc, path))
	return path
}

func TestParseOBJ(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quad.mtl", quadMTL)
	path := writeFile(t, dir, "quad.obj", quadOBJ)

	group, err := NewLoader().LoadOBJ(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "quad.obj", group.Name)

	children := group.Children()
	require.Len(t, children, 2)

	quad, ok := children[0].(*render.Mesh)
	require.True(t, ok)
	assert.Equal(t, "quad", quad.Name)
	assert.Equal(t, 4, quad.Geometry.VertexCount())
	assert.Equal(t, 2, quad.Geometry.TriangleCount())
	assert.Equal(t, render.RGBA(255, 0, 0, 128), quad.Material.Color)
	assert.Nil(t, quad.Material.Map, "missing texture is skipped")
	_, _, uv := quad.Geometry.GetVertex(2)
	assert.Equal(t, math3d.V2(1, 1), uv)

	tri := children[1].(*render.Mesh)
	assert.Equal(t, "missing", tri.Material.Name)
	assert.Equal(t, render.ColorWhite, tri.Material.Color)
	_, n, _ := tri.Geometry.GetVertex(0)
	assert.True(t, n.ApproxEqual(math3d.V3(0, 0, 1), 1e-9), "normals are filled in, got %v", n)
}

func TestParseOBJWithoutLibrary(t *testing.T) {
	src := "mtllib gone.mtl\nv 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\nv 0 2 0\nusemtl red\nf 1 2 3 4 5\n"
	group, err := ParseOBJ(strings.NewReader(src), filepath.Join(t.TempDir(), "pent.obj"))
	require.NoError(t, err)
	require.Len(t, group.Children(), 1)

	m := group.Children()[0].(*render.Mesh)
	assert.Equal(t, 5, m.Geometry.VertexCount())
	assert.Equal(t, 3, m.Geometry.TriangleCount(), "pentagon is fanned")
	assert.Equal(t, "red", m.Material.Name)
	assert.Equal(t, render.ColorWhite, m.Material.Color, "unknown materials are white")
	_, n, uv := m.Geometry.GetVertex(1)
	assert.True(t, n.ApproxEqual(math3d.V3(0, 0, 1), 1e-9), "normal = %v", n)
	assert.Equal(t, math3d.Vec2{}, uv)
}

func TestParseOBJErrors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"bad number", "v 1 x 3\n", "decode obj"},
		{"short vertex", "v 1 2\n", "decode obj"},
		{"index out of range", "v 0 0 0\nf 1 2 3\n", "vertex index 2 out of range"},
		{"two corners", "v 0 0 0\nv 1 0 0\nf 1 2\n", "obj"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseOBJ(strings.NewReader(tc.src), "x.obj")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadGLTF(t *testing.T) {
	path := writeQuadGLB(t, t.TempDir())

	var progressed, loaded bool
	g, err := NewLoader().LoadGLTF(context.Background(), path, &Callbacks[*GLTF]{
		OnLoad: func(g *GLTF) *GLTF {
			loaded = true
			return g
		},
		OnProgress: func(Progress) { progressed = true },
		OnError:    func(err error) { t.Errorf("unexpected error %v", err) },
	})
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.True(t, progressed)
	assert.Equal(t, "2.0", g.Asset.Version)

	require.Len(t, g.Scenes, 1)
	assert.Same(t, g.Scenes[0], g.Scene)
	assert.Equal(t, "main", g.Scene.Name)

	nodes := g.Scene.Children()
	require.Len(t, nodes, 1)
	root := nodes[0].(*render.Group)
	assert.Equal(t, "root", root.Name)
	assert.True(t, root.Position.ApproxEqual(math3d.V3(1, 2, 3), 1e-9))

	// one mesh plus the child node
	parts := root.Children()
	require.Len(t, parts, 2)
	mesh := parts[0].(*render.Mesh)
	assert.Equal(t, 2, mesh.Geometry.TriangleCount())
	assert.Equal(t, render.ColorRed, mesh.Material.Color)
	_, n, _ := mesh.Geometry.GetVertex(0)
	assert.True(t, n.ApproxEqual(math3d.V3(0, 0, 1), 1e-6), "normal = %v", n)

	child := parts[1].(*render.Group)
	shared := child.Children()[0].(*render.Mesh)
	assert.Same(t, mesh.Geometry, shared.Geometry, "instanced meshes share geometry")
	assert.Same(t, mesh.Material, shared.Material)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	var seen error
	_, err := NewLoader().LoadGLTF(ctx, filepath.Join(dir, "missing.glb"), &Callbacks[*GLTF]{
		OnError: func(err error) { seen = err },
	})
	require.Error(t, err)
	assert.Equal(t, err, seen)
	assert.ErrorIs(t, err, fetch.ErrNotFound)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, filepath.Join(dir, "missing.glb"), le.URL)

	bad := writeFile(t, dir, "bad.glb", "glTF not really")
	_, err = LoadGLTF(ctx, bad, nil)
	assert.True(t, errors.As(err, &le))

	txt := writeFile(t, dir, "notes.txt", "hello there\n")
	_, err = NewLoader().Load(ctx, txt)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadDispatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := NewLoader()

	glb := writeQuadGLB(t, dir)
	obj := writeFile(t, dir, "model.dat", quadOBJ) // sniffed, not named

	scene, err := l.Load(ctx, glb)
	require.NoError(t, err)
	assert.Equal(t, "main", scene.Object3D().Name)

	group, err := l.Load(ctx, obj)
	require.NoError(t, err)
	assert.Len(t, group.Object3D().Children(), 2)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		head string
		url  string
		want Format
	}{
		{"glb magic", "glTF\x02\x00\x00\x00\x10\x00\x00\x00", "blob", FormatGLB},
		{"gltf json", "\n{\n \"asset\": {\"version\": \"2.0\"}}", "blob", FormatGLTF},
		{"obj text", "# exported\n\nv 1 2 3\n", "blob", FormatOBJ},
		{"extension fallback", "\x00\x01", "https://x.test/a/Box.GLB?v=1", FormatGLB},
		{"unknown", "hello", "notes.txt", FormatUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectFormat([]byte(tc.head), tc.url))
		})
	}
}

func TestFutureAndPool(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quad.mtl", quadMTL)
	path := writeFile(t, dir, "quad.obj", quadOBJ)
	ctx := context.Background()

	fut := LoadOBJAsync(ctx, path, nil)
	group, err := fut.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, group.Children(), 2)
	select {
	case <-fut.Done():
	default:
		t.Error("Done should be closed after Wait returns")
	}

	pool := NewPool(NewLoader(), 2)
	res := <-pool.LoadOBJ(ctx, path)
	require.NoError(t, res.Err)
	assert.NotNil(t, res.Value)

	res2 := <-pool.LoadGLTF(ctx, filepath.Join(dir, "missing.glb"))
	assert.ErrorIs(t, res2.Err, fetch.ErrNotFound, "failures reach the caller")
	assert.Nil(t, res2.Value)

	obj := <-pool.Load(ctx, path)
	require.NoError(t, obj.Err)
	assert.IsType(t, &render.Group{}, obj.Value)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	res = <-pool.LoadOBJ(canceled, path)
	assert.ErrorIs(t, res.Err, context.Canceled)
	pool.Wait()
}
