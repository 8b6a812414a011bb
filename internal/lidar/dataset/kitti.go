package dataset

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/mapseg/internal/lidar/l2frames"
	"github.com/banshee-data/mapseg/internal/lidar/masks"
)

// KittiOptions locates a KITTI odometry sequence on disk.
//
//	<Root>/sequences/<Sequence>/velodyne/000000.bin
//	<Root>/sequences/<Sequence>/labels/000000.label   (optional)
//	<Root>/sequences/<Sequence>/calib.txt
//	<Root>/poses/<Sequence>.txt
//	<MasksDir>/<cam>/000000/*.png|bmp|tif
type KittiOptions struct {
	Root     string
	Sequence string
	MasksDir string
}

var (
	_ Dataset     = (*Kitti)(nil)
	_ GroundTruth = (*Kitti)(nil)
)

// Kitti reads a KITTI odometry sequence. Poses and calibration are loaded
// once at open; scans, labels and masks are read per frame.
type Kitti struct {
	opts        KittiOptions
	sequenceDir string
	calib       Calibration
	lidarPoses  []l2frames.Pose
}

// OpenKitti loads the calibration and poses of a sequence.
func OpenKitti(opts KittiOptions) (*Kitti, error) {
	k := &Kitti{
		opts:        opts,
		sequenceDir: filepath.Join(opts.Root, "sequences", opts.Sequence),
	}

	calib, err := readFile(filepath.Join(k.sequenceDir, "calib.txt"), ReadCalibration)
	if err != nil {
		return nil, fmt.Errorf("open kitti sequence %s: %w", opts.Sequence, err)
	}
	k.calib = calib

	camPoses, err := readFile(filepath.Join(opts.Root, "poses", opts.Sequence+".txt"), ReadPoses)
	if err != nil {
		return nil, fmt.Errorf("open kitti sequence %s: %w", opts.Sequence, err)
	}

	// Poses are given for cam0; conjugate by Tr to express them for the LiDAR.
	trInv, err := calib.Tr.Inverse()
	if err != nil {
		return nil, fmt.Errorf("calib Tr: %w", err)
	}
	k.lidarPoses = make([]l2frames.Pose, len(camPoses))
	for i, p := range camPoses {
		k.lidarPoses[i] = trInv.Mul(p).Mul(calib.Tr)
	}
	return k, nil
}

// Len returns the number of posed frames.
func (k *Kitti) Len() int {
	return len(k.lidarPoses)
}

func (k *Kitti) checkIndex(index int) error {
	if index < 0 || index >= len(k.lidarPoses) {
		return fmt.Errorf("frame %d outside sequence of %d frames", index, len(k.lidarPoses))
	}
	return nil
}

// PointCloud reads velodyne/<index>.bin.
func (k *Kitti) PointCloud(index int) ([]l2frames.Point, error) {
	if err := k.checkIndex(index); err != nil {
		return nil, err
	}
	return readFile(filepath.Join(k.sequenceDir, "velodyne", frameName(index)+".bin"), ReadVelodyne)
}

// LidarPose returns the LiDAR-to-world pose of a frame.
func (k *Kitti) LidarPose(index int) (l2frames.Pose, error) {
	if err := k.checkIndex(index); err != nil {
		return l2frames.Pose{}, err
	}
	return k.lidarPoses[index], nil
}

// Camera returns cam0..cam3.
func (k *Kitti) Camera(name string) (Camera, error) {
	for i := 0; i < len(k.calib.P); i++ {
		if name == fmt.Sprintf("cam%d", i) {
			return k.calib.Camera(i), nil
		}
	}
	return Camera{}, fmt.Errorf("%w: %q", ErrUnknownCamera, name)
}

// ImageInstances loads <MasksDir>/<camera>/<index>/ mask images. A frame
// without a mask directory has no instances.
func (k *Kitti) ImageInstances(camera string, index int) ([]masks.Mask, error) {
	if _, err := k.Camera(camera); err != nil {
		return nil, err
	}
	return masks.LoadDir(filepath.Join(k.opts.MasksDir, camera, frameName(index)))
}

// Labels reads labels/<index>.label.
func (k *Kitti) Labels(index int) (semantic, instance []int, err error) {
	if err := k.checkIndex(index); err != nil {
		return nil, nil, err
	}
	type pair struct{ sem, inst []int }
	p, err := readFile(filepath.Join(k.sequenceDir, "labels", frameName(index)+".label"),
		func(r io.Reader) (pair, error) {
			s, i, err := ReadLabels(r)
			return pair{s, i}, err
		})
	return p.sem, p.inst, err
}

func frameName(index int) string {
	return fmt.Sprintf("%06d", index)
}
