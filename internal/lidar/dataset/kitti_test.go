package dataset

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mapseg/internal/lidar/l2frames"
)

const testCalib = `P0: 700 0 600 0 0 700 180 0 0 0 1 0
P1: 700 0 600 -378 0 700 180 0 0 0 1 0
P2: 700 0 600 46.2 0 700 180 0 0 0 1 0
P3: 700 0 600 -330 0 700 180 0 0 0 1 0
Tr: 0 -1 0 0 1 0 0 0 0 0 1 0
`

// Two frames: identity, then 5 m along cam0 x.
const testPoses = `1 0 0 0 0 1 0 0 0 0 1 0
1 0 0 5 0 1 0 0 0 0 1 0
`

func velodyneBytes(t *testing.T, pts [][4]float32) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, p := range pts {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, p))
	}
	return buf.Bytes()
}

func labelBytes(t *testing.T, sem, inst []uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	for i := range sem {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(inst[i])<<16|uint32(sem[i])))
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// newKittiFixture lays out a two-frame sequence "00" under a temp dir.
func newKittiFixture(t *testing.T) KittiOptions {
	t.Helper()
	root := t.TempDir()
	seq := filepath.Join(root, "sequences", "00")

	writeFile(t, filepath.Join(seq, "calib.txt"), []byte(testCalib))
	writeFile(t, filepath.Join(root, "poses", "00.txt"), []byte(testPoses))
	writeFile(t, filepath.Join(seq, "velodyne", "000000.bin"), velodyneBytes(t, [][4]float32{{1, 2, 3, 0.5}, {-4, 5.5, 0, 0.1}}))
	writeFile(t, filepath.Join(seq, "velodyne", "000001.bin"), velodyneBytes(t, [][4]float32{{7, 8, 9, 0}}))
	writeFile(t, filepath.Join(seq, "labels", "000000.label"), labelBytes(t, []uint16{10, 40}, []uint16{3, 0}))
	writeFile(t, filepath.Join(seq, "labels", "000001.label"), labelBytes(t, []uint16{10}, []uint16{7}))

	img := image.NewGray(image.Rect(0, 0, 4, 3))
	img.SetGray(1, 1, color.Gray{Y: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	masksDir := filepath.Join(root, "masks")
	writeFile(t, filepath.Join(masksDir, "cam2", "000001", "0.png"), buf.Bytes())

	return KittiOptions{Root: root, Sequence: "00", MasksDir: masksDir}
}

func TestOpenKitti(t *testing.T) {
	k, err := OpenKitti(newKittiFixture(t))
	require.NoError(t, err)
	assert.Equal(t, 2, k.Len())

	pts, err := k.PointCloud(0)
	require.NoError(t, err)
	want := []l2frames.Point{{X: 1, Y: 2, Z: 3}, {X: -4, Y: 5.5, Z: 0}}
	if diff := cmp.Diff(want, pts); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}

	_, err = k.PointCloud(2)
	assert.Error(t, err)
}

func TestKitti_LidarPoseConjugatesByTr(t *testing.T) {
	k, err := OpenKitti(newKittiFixture(t))
	require.NoError(t, err)

	p0, err := k.LidarPose(0)
	require.NoError(t, err)
	assert.True(t, l2frames.IsValidTransformMatrix(p0.T))
	origin := p0.Translation()
	assert.InDelta(t, 0, origin.X, 1e-12)
	assert.InDelta(t, 0, origin.Y, 1e-12)

	// Tr rotates +90° about z, so cam0 +x becomes LiDAR −y.
	p1, err := k.LidarPose(1)
	require.NoError(t, err)
	tr := p1.Translation()
	assert.InDelta(t, 0, tr.X, 1e-12)
	assert.InDelta(t, -5, tr.Y, 1e-12)
	assert.InDelta(t, 0, tr.Z, 1e-12)
}

func TestKitti_Camera(t *testing.T) {
	k, err := OpenKitti(newKittiFixture(t))
	require.NoError(t, err)

	cam, err := k.Camera("cam2")
	require.NoError(t, err)
	assert.Equal(t, [9]float64{700, 0, 600, 0, 700, 180, 0, 0, 1}, cam.K)
	assert.InDelta(t, 0.066, cam.Extrinsics.T[3], 1e-12)

	cam0, err := k.Camera("cam0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, cam0.Extrinsics.T[3])

	_, err = k.Camera("cam7")
	assert.ErrorIs(t, err, ErrUnknownCamera)
}

func TestKitti_ImageInstances(t *testing.T) {
	k, err := OpenKitti(newKittiFixture(t))
	require.NoError(t, err)

	ms, err := k.ImageInstances("cam2", 1)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, 1, ms[0].Area)
	assert.Equal(t, 4, ms[0].Width)

	none, err := k.ImageInstances("cam2", 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = k.ImageInstances("cam9", 0)
	assert.ErrorIs(t, err, ErrUnknownCamera)
}

func TestLoadScansAndLabels(t *testing.T) {
	k, err := OpenKitti(newKittiFixture(t))
	require.NoError(t, err)

	scans, err := LoadScans(k, 0, 2)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, 1, scans[1].Index)
	assert.Len(t, l2frames.AssembleMap(scans), 3)

	sem, inst, err := LoadWindowLabels(k, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 40, 10}, sem)
	assert.Equal(t, []int{3, 0, 7}, inst)

	_, err = LoadScans(k, 1, 3)
	assert.Error(t, err)
	_, err = LoadScans(k, 1, 1)
	assert.Error(t, err)
}

func TestCameraPose(t *testing.T) {
	k, err := OpenKitti(newKittiFixture(t))
	require.NoError(t, err)

	camPose, err := CameraPose(k, "cam0", 1)
	require.NoError(t, err)
	// cam0 world pose is the poses file entry itself, up to Tr conjugation:
	// T_lidar · Tr⁻¹ = Tr⁻¹ · P.
	origin := camPose.ApplyPoint(l2frames.Point{})
	assert.InDelta(t, 0, origin.X, 1e-12)
	assert.InDelta(t, -5, origin.Y, 1e-12)
}

func TestReadLabels(t *testing.T) {
	sem, inst, err := ReadLabels(bytes.NewReader(labelBytes(t, []uint16{252, 0}, []uint16{65535, 1})))
	require.NoError(t, err)
	assert.Equal(t, []int{252, 0}, sem)
	assert.Equal(t, []int{65535, 1}, inst)

	_, _, err = ReadLabels(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestReadVelodyne_Truncated(t *testing.T) {
	_, err := ReadVelodyne(bytes.NewReader(make([]byte, 20)))
	assert.Error(t, err)

	pts, err := ReadVelodyne(bytes.NewReader(velodyneBytes(t, [][4]float32{{float32(math.Pi), 0, 0, 0}})))
	require.NoError(t, err)
	assert.InDelta(t, math.Pi, pts[0].X, 1e-6)
}

func TestReadCalibration_Errors(t *testing.T) {
	_, err := ReadCalibration(strings.NewReader("P0: 1 2 3\n"))
	assert.Error(t, err)

	_, err = ReadCalibration(strings.NewReader("P0: 700 0 600 0 0 700 180 0 0 0 1 0\n"))
	assert.ErrorContains(t, err, "missing P1")

	_, err = ReadCalibration(strings.NewReader(strings.Replace(testCalib, "46.2", "x", 1)))
	assert.Error(t, err)
}

func TestReadPoses(t *testing.T) {
	poses, err := ReadPoses(strings.NewReader(testPoses + "\n"))
	require.NoError(t, err)
	require.Len(t, poses, 2)
	assert.Equal(t, 5.0, poses[1].T[3])

	_, err = ReadPoses(strings.NewReader("1 2 3\n"))
	assert.Error(t, err)
}
